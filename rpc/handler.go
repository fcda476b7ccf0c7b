package rpc

import (
	"context"
)

// Handler serves one request. The returned value is encoded as JSON into the
// reply. Domain failures belong in the returned value; a non-nil error is
// reported to the caller as a RemoteError.
type Handler interface {
	ServeRPC(ctx context.Context, env *Envelope) (any, error)
}

type HandlerFunc func(ctx context.Context, env *Envelope) (any, error)

func (f HandlerFunc) ServeRPC(ctx context.Context, env *Envelope) (any, error) {
	return f(ctx, env)
}

type Middleware func(next Handler) Handler

// Chain composes middlewares so that the first one is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
