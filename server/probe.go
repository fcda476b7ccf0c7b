package server

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/federation"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
)

// Probe introspects the service behind queue and writes its schema to w as
// the gateway would compose it.
func Probe(ctx context.Context, cfg Config, queue string, timeout time.Duration, w io.Writer, opts ...Option) error {
	o := newOptions(opts)

	conn, err := broker.Connect(ctx, cfg.Broker, o.brokerOptions()...)
	if err != nil {
		return err
	}
	defer conn.Disconnect() //nolint:errcheck

	client := rpc.NewClient(conn.Channel(),
		rpc.WithLogger(o.logger),
		rpc.WithCallTimeout(timeout),
		rpc.WithMessageTTL(cfg.MessageTTL),
	)
	if err := client.InitSending(ctx); err != nil {
		return err
	}
	defer client.Close()

	sg, err := federation.Discover(ctx, conn.Channel(), graphqlrpc.NewCaller(client), []string{queue},
		federation.WithLogger(o.logger),
	)
	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w, sg.SDL)
	return err
}
