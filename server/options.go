package server

import (
	"log/slog"

	"github.com/n9te9/go-graphql-rpc-gateway/broker"
)

// demoBrokerURL is used when the demo services run in process.
const demoBrokerURL = "memory://demo"

type options struct {
	logger *slog.Logger
	dialer broker.Dialer
	demo   bool
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDialer replaces the transport picked from AMQP_URL.
func WithDialer(d broker.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithDemo serves the bundled users and posts services in process over an
// in-memory broker instead of connecting to AMQP_URL.
func WithDemo(enabled bool) Option {
	return func(o *options) {
		o.demo = enabled
	}
}

func newOptions(opts []Option) *options {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) brokerOptions() []broker.Option {
	opts := []broker.Option{broker.WithLogger(o.logger)}
	if o.dialer != nil {
		opts = append(opts, broker.WithDialer(o.dialer))
	}
	return opts
}
