package graphqlrpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
)

// RPC is the request/reply transport a Caller sends through.
type RPC interface {
	Call(ctx context.Context, queue string, data any) (json.RawMessage, error)
}

// Caller sends GraphQL operations to service queues.
type Caller struct {
	rpc           RPC
	defaultCaller *CallerContext
	logger        *slog.Logger
}

type CallerOption func(*Caller)

// WithDefaultCaller sets the identity used when a call names none. Without
// this option the default is SystemCaller.
func WithDefaultCaller(cc *CallerContext) CallerOption {
	return func(c *Caller) {
		c.defaultCaller = cc
	}
}

func WithLogger(l *slog.Logger) CallerOption {
	return func(c *Caller) {
		if l != nil {
			c.logger = l
		}
	}
}

func NewCaller(r RPC, opts ...CallerOption) *Caller {
	c := &Caller{
		rpc:           r,
		defaultCaller: SystemCaller(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GraphQL runs query on the service behind queue. A nil caller falls back to
// the configured default identity.
func (c *Caller) GraphQL(ctx context.Context, queue, query string, variables map[string]any, caller *CallerContext) (*Response, error) {
	return c.Do(ctx, queue, &Request{
		Query:     query,
		Variables: variables,
		Context:   caller,
	})
}

// Do sends req to queue. Errors returned are transport failures; GraphQL
// errors of the service are in Response.Errors.
func (c *Caller) Do(ctx context.Context, queue string, req *Request) (*Response, error) {
	out := *req
	out.Event = EventGraphQL
	if out.Context == nil {
		out.Context = c.defaultCaller
		if out.Context.Elevated() {
			c.logger.InfoContext(ctx, "graphql call using default system identity",
				"queue", queue,
				"operation", out.OperationName,
			)
		}
	}

	raw, err := c.rpc.Call(ctx, queue, &out)
	if err != nil {
		return nil, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("graphqlrpc: decode response from %q: %w", queue, err)
	}
	return &resp, nil
}
