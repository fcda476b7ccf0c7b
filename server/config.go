package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
)

// Config is the process configuration read from the environment. The
// gateway YAML file covers everything else.
type Config struct {
	Broker         broker.Config
	MessageTTL     time.Duration `env:"RPC_MESSAGE_TTL" envDefault:"30s"`
	HandlerTimeout time.Duration `env:"RPC_HANDLER_TIMEOUT" envDefault:"10s"`
	HandlerRate    float64       `env:"RPC_HANDLER_RATE" envDefault:"0"`
	HandlerBurst   int           `env:"RPC_HANDLER_BURST" envDefault:"20"`
	Debug          bool          `env:"GATEWAY_DEBUG" envDefault:"false"`
	OTelEndpoint   string        `env:"OTEL_ENDPOINT"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// ResponderMiddleware returns the middleware chain for responders served by
// this process. A zero HandlerTimeout or HandlerRate disables that stage.
func (c Config) ResponderMiddleware(logger *slog.Logger) []rpc.Middleware {
	mw := []rpc.Middleware{rpc.Logging(logger)}
	if c.HandlerRate > 0 {
		mw = append(mw, rpc.RateLimit(c.HandlerRate, max(c.HandlerBurst, 1)))
	}
	if c.HandlerTimeout > 0 {
		mw = append(mw, rpc.Timeout(c.HandlerTimeout))
	}
	return mw
}
