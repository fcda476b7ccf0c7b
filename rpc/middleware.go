package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

var ErrRateLimited = errors.New("rpc: rate limit exceeded")

// Logging logs every handled request with its duration.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, env *Envelope) (any, error) {
			start := time.Now()
			result, err := next.ServeRPC(ctx, env)

			attrs := []any{
				"correlation_id", env.CorrelationID,
				"reply", env.ReplyTo != "",
				"duration", time.Since(start),
			}
			if err != nil {
				logger.ErrorContext(ctx, "rpc request failed", append(attrs, "error", err)...)
			} else {
				logger.DebugContext(ctx, "rpc request handled", attrs...)
			}
			return result, err
		})
	}
}

// Timeout bounds the handler with d. The handler keeps running in the
// background if it ignores its context.
func Timeout(d time.Duration) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, env *Envelope) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			type outcome struct {
				result any
				err    error
			}
			done := make(chan outcome, 1)
			go func() {
				result, err := next.ServeRPC(ctx, env)
				done <- outcome{result, err}
			}()

			select {
			case o := <-done:
				return o.result, o.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		})
	}
}

// RateLimit rejects requests beyond r per second with the given burst.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, env *Envelope) (any, error) {
			if !limiter.Allow() {
				return nil, ErrRateLimited
			}
			return next.ServeRPC(ctx, env)
		})
	}
}
