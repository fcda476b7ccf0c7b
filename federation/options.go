package federation

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/n9te9/go-graphql-rpc-gateway/federation"

// DefaultDiscoveryTimeout bounds the whole discovery run.
const DefaultDiscoveryTimeout = 10 * time.Second

type options struct {
	logger           *slog.Logger
	tracerProvider   trace.TracerProvider
	formatter        ErrorFormatter
	discoveryTimeout time.Duration
}

type Option func(*options)

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithErrorFormatter replaces the formatter applied to every error of a
// result.
func WithErrorFormatter(f ErrorFormatter) Option {
	return func(o *options) {
		o.formatter = f
	}
}

// WithDiscoveryTimeout bounds discovery. Zero or negative disables the bound.
func WithDiscoveryTimeout(d time.Duration) Option {
	return func(o *options) {
		o.discoveryTimeout = d
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:           slog.Default(),
		tracerProvider:   otel.GetTracerProvider(),
		discoveryTimeout: DefaultDiscoveryTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
