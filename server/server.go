// Package server wires configuration, the broker connection, the rpc client
// and the gateway registry into an HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/gateway"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/n9te9/go-graphql-rpc-gateway/internal/demo"
	"github.com/n9te9/go-graphql-rpc-gateway/registry"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
	"github.com/n9te9/go-graphql-rpc-gateway/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
)

const shutdownTimeout = 5 * time.Second

// Run serves the gateway described by the YAML file at configPath until ctx
// ends or the process receives SIGINT or SIGTERM. Startup fails if any
// configured service cannot be introspected.
func Run(ctx context.Context, configPath string, opts ...Option) error {
	o := newOptions(opts)
	logger := o.logger

	settings, err := gateway.LoadOption(configPath)
	if err != nil {
		return err
	}
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	if cfg.Debug {
		settings.Debug = true
	}
	if o.demo && o.dialer == nil {
		cfg.Broker.URL = demoBrokerURL
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, settings.ServiceName, cfg.OTelEndpoint, settings.Opentelemetry.TracingSetting.Enable)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "error", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := rpc.NewMetrics(promRegistry)

	conn, err := broker.Connect(ctx, cfg.Broker, o.brokerOptions()...)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Disconnect(); err != nil {
			logger.Warn("broker disconnect", "error", err)
		}
	}()

	if o.demo {
		stopDemo, err := startDemo(ctx, cfg, o, metrics)
		if err != nil {
			return err
		}
		defer stopDemo()
	}

	client := rpc.NewClient(conn.Channel(),
		rpc.WithLogger(logger),
		rpc.WithMetrics(metrics),
		rpc.WithTracerProvider(otel.GetTracerProvider()),
		rpc.WithCallTimeout(settings.RPC.CallTimeout()),
		rpc.WithMessageTTL(cfg.MessageTTL),
	)
	if err := client.InitSending(ctx); err != nil {
		return err
	}
	defer client.Close()
	caller := graphqlrpc.NewCaller(client, graphqlrpc.WithLogger(logger))

	reg := registry.NewRegistry(func(ctx context.Context) (*gateway.Gateway, error) {
		return gateway.NewGateway(ctx, settings, conn.Channel(), caller,
			gateway.WithLogger(logger),
			gateway.WithTracerProvider(otel.GetTracerProvider()),
		)
	}, registry.WithLogger(logger))
	if err := reg.Reload(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(settings.Port)),
		Handler:           NewHandler(reg, settings.Endpoint, promRegistry),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", srv.Addr, "endpoint", settings.Endpoint, "queues", settings.Queues)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return nil
}

// startDemo serves the demo services on their own connection to the same
// broker, as separate processes would.
func startDemo(ctx context.Context, cfg Config, o *options, metrics *rpc.Metrics) (func(), error) {
	logger := o.logger.With("component", "demo")
	conn, err := broker.Connect(ctx, cfg.Broker, o.brokerOptions()...)
	if err != nil {
		return nil, fmt.Errorf("demo: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := demo.Serve(ctx, conn.Channel(),
			rpc.WithLogger(logger),
			rpc.WithMetrics(metrics),
			rpc.WithMessageTTL(cfg.MessageTTL),
			rpc.WithMiddleware(cfg.ResponderMiddleware(logger)...),
		); err != nil {
			logger.Error("demo services stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		<-done
		conn.Disconnect() //nolint:errcheck
	}, nil
}
