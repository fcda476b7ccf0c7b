package graphqlrpc

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/n9te9/go-graphql-rpc-gateway/rpc"
)

type callerKey struct{}

// WithCaller returns ctx carrying cc for resolvers.
func WithCaller(ctx context.Context, cc *CallerContext) context.Context {
	return context.WithValue(ctx, callerKey{}, cc)
}

// CallerFromContext returns the identity the current operation runs for.
func CallerFromContext(ctx context.Context) (*CallerContext, bool) {
	cc, ok := ctx.Value(callerKey{}).(*CallerContext)
	return cc, ok && cc != nil
}

// SchemaHandler executes GraphQL requests against a local schema.
type SchemaHandler struct {
	schema *graphql.Schema
}

var _ rpc.Handler = (*SchemaHandler)(nil)

func NewSchemaHandler(schema *graphql.Schema) *SchemaHandler {
	return &SchemaHandler{schema: schema}
}

func (h *SchemaHandler) ServeRPC(ctx context.Context, env *rpc.Envelope) (any, error) {
	var req Request
	if err := env.Decode(&req); err != nil {
		return &Response{Errors: []Error{{Message: fmt.Sprintf("invalid graphql request: %v", err)}}}, nil
	}
	if req.Event != EventGraphQL {
		return nil, fmt.Errorf("%w: %q", rpc.ErrUnknownEvent, req.Event)
	}

	if req.Context != nil {
		ctx = WithCaller(ctx, req.Context)
	}

	res := h.schema.Exec(ctx, req.Query, req.OperationName, req.Variables)

	resp := &Response{Data: json.RawMessage(res.Data)}
	if len(resp.Data) == 0 {
		resp.Data = json.RawMessage("null")
	}
	for _, qe := range res.Errors {
		e := Error{
			Message:    qe.Message,
			Path:       qe.Path,
			Extensions: qe.Extensions,
		}
		for _, loc := range qe.Locations {
			e.Locations = append(e.Locations, Location{Line: loc.Line, Column: loc.Column})
		}
		resp.Errors = append(resp.Errors, e)
	}
	return resp, nil
}

// Serve answers GraphQL requests on queue with schema until ctx ends.
func Serve(ctx context.Context, responder *rpc.Responder, queue string, schema *graphql.Schema) error {
	mux := rpc.NewMux()
	mux.Handle(EventGraphQL, NewSchemaHandler(schema))
	return responder.Receive(ctx, queue, mux)
}
