package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v5"
)

// Connection owns the transport of a process and its single Channel.
//
// There is no automatic reconnection: once an established connection drops,
// the loss is logged and recovery is left to process supervision.
type Connection struct {
	mu        sync.Mutex
	transport Transport
	channel   Channel
	logger    *slog.Logger
}

type options struct {
	dialer Dialer
	logger *slog.Logger
}

// Option configures Connect.
type Option func(*options)

// WithDialer overrides the transport chosen from the URL scheme.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithLogger sets the logger used for retries and connection loss.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Connect dials the broker, retrying at a fixed interval up to
// cfg.RetryAttempts attempts, then opens one channel with cfg.Prefetch.
// After the last failed attempt the dial error is returned.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	dialer := o.dialer
	if dialer == nil {
		d, err := DialerFor(cfg.URL)
		if err != nil {
			return nil, err
		}
		dialer = d
	}

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	target := redact(cfg.URL)
	attempt := 0
	transport, err := backoff.Retry(ctx, func() (Transport, error) {
		attempt++
		t, err := dialer.Dial(ctx, cfg.URL)
		if err != nil {
			o.logger.Warn("broker dial failed",
				"url", target,
				"attempt", attempt,
				"max_attempts", attempts,
				"error", err,
			)
			return nil, err
		}
		return t, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.RetryDelay)),
		backoff.WithMaxTries(uint(attempts)),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: connect to %s failed after %d attempt(s): %w", target, attempt, err)
	}

	ch, err := transport.Channel()
	if err != nil {
		transport.Close()
		return nil, fmt.Errorf("broker: open channel: %w", err)
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = DefaultPrefetch
	}
	if err := ch.Qos(prefetch); err != nil {
		ch.Close()
		transport.Close()
		return nil, fmt.Errorf("broker: set prefetch %d: %w", prefetch, err)
	}

	c := &Connection{
		transport: transport,
		channel:   ch,
		logger:    o.logger,
	}
	go c.watch(transport.NotifyClose(), target)

	o.logger.Info("broker connected", "url", target, "attempts", attempt, "prefetch", prefetch)
	return c, nil
}

func (c *Connection) watch(closed <-chan error, target string) {
	for err := range closed {
		if err != nil {
			c.logger.Error("broker connection lost, not reconnecting", "url", target, "error", err)
		}
	}
}

// Channel returns the shared channel, or nil after Disconnect.
func (c *Connection) Channel() Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Disconnect closes the channel and the connection and clears both handles.
// Calling it again is a no-op.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	ch, t := c.channel, c.transport
	c.channel, c.transport = nil, nil
	c.mu.Unlock()

	if t == nil {
		return nil
	}

	if ch != nil {
		if err := ch.Close(); err != nil {
			c.logger.Warn("broker channel close failed", "error", err)
		}
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("broker: close connection: %w", err)
	}
	return nil
}
