package federation

import (
	"context"
	"fmt"

	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Declarer asserts that a queue exists. broker.Channel implements it.
type Declarer interface {
	DeclareQueue(name string, opts broker.QueueOptions) (string, error)
}

// Discover introspects every queue in parallel and composes the results.
// The first failure cancels the remaining introspections and is returned;
// a partial supergraph is never produced.
func Discover(ctx context.Context, declarer Declarer, caller *graphqlrpc.Caller, queues []string, opts ...Option) (*SuperGraph, error) {
	if len(queues) == 0 {
		return nil, ErrNoSubschemas
	}
	seen := make(map[string]bool, len(queues))
	for _, q := range queues {
		if seen[q] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, q)
		}
		seen[q] = true
	}

	o := newOptions(opts)
	ctx, span := o.tracerProvider.Tracer(tracerName).Start(ctx, "federation.discover",
		trace.WithAttributes(attribute.StringSlice("rpc.queues", queues)),
	)
	defer span.End()

	if o.discoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.discoveryTimeout)
		defer cancel()
	}

	subschemas := make([]*Subschema, len(queues))
	g, gctx := errgroup.WithContext(ctx)
	for i, queue := range queues {
		g.Go(func() error {
			sub, err := introspect(gctx, declarer, caller, queue)
			if err != nil {
				return err
			}
			if sub.droppedSubscription {
				o.logger.WarnContext(gctx, "subscription root dropped, subscriptions are not federated", "queue", queue)
			}
			subschemas[i] = sub.Subschema
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sg, err := Compose(subschemas)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	o.logger.InfoContext(ctx, "supergraph composed",
		"subschemas", len(subschemas),
		"types", len(sg.Schema.Types),
		"root_fields", len(sg.Ownerships),
	)
	return sg, nil
}

type discovered struct {
	*Subschema
	droppedSubscription bool
}

func introspect(ctx context.Context, declarer Declarer, caller *graphqlrpc.Caller, queue string) (*discovered, error) {
	if _, err := declarer.DeclareQueue(queue, broker.QueueOptions{}); err != nil {
		return nil, fmt.Errorf("federation: declare %q: %w", queue, err)
	}

	exec := NewQueueExecutor(caller, queue)
	resp, err := exec(ctx, &graphqlrpc.Request{
		Query:         IntrospectionQuery,
		OperationName: "IntrospectionQuery",
		Context:       graphqlrpc.SystemCaller(),
	})
	if err != nil {
		return nil, fmt.Errorf("federation: introspect %q: %w", queue, err)
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("federation: introspect %q: %w", queue, err)
	}

	schema, err := ParseIntrospection(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("federation: %q: %w", queue, err)
	}
	dropped, err := schema.normalizeRoots()
	if err != nil {
		return nil, fmt.Errorf("federation: %q: %w", queue, err)
	}

	return &discovered{
		Subschema: &Subschema{
			Queue:    queue,
			Schema:   schema,
			Executor: exec,
		},
		droppedSubscription: dropped,
	}, nil
}
