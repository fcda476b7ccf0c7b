package rpc

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type options struct {
	logger         *slog.Logger
	metrics        *Metrics
	tracerProvider trace.TracerProvider
	callTimeout    time.Duration
	messageTTL     time.Duration
	middleware     []Middleware
	now            func() time.Time
}

// Option configures a Client or a Responder. Options that only concern one
// of them are ignored by the other.
type Option func(*options)

func newOptions(opts []Option) options {
	o := options{
		logger:     slog.Default(),
		messageTTL: DefaultMessageTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithCallTimeout bounds how long Client.Call waits for a reply. Zero, the
// default, waits until the reply arrives or the context ends.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		o.callTimeout = d
	}
}

// WithMessageTTL sets the age after which a Responder drops requests unhandled.
func WithMessageTTL(d time.Duration) Option {
	return func(o *options) {
		o.messageTTL = d
	}
}

// WithMiddleware wraps every handler passed to Responder.Receive.
func WithMiddleware(mw ...Middleware) Option {
	return func(o *options) {
		o.middleware = append(o.middleware, mw...)
	}
}
