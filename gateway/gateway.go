package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-rpc-gateway/federation"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const requestIDHeader = "X-Request-Id"

// CallerResolver derives the identity forwarded to services from an HTTP
// request.
type CallerResolver func(r *http.Request) *graphqlrpc.CallerContext

// AnonymousCallers is the default CallerResolver. Identity extraction (for
// example from a bearer token) is left to the embedding application.
func AnonymousCallers(*http.Request) *graphqlrpc.CallerContext {
	return graphqlrpc.AnonymousCaller()
}

type options struct {
	logger         *slog.Logger
	tracerProvider trace.TracerProvider
	callerResolver CallerResolver
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

func WithCallerResolver(r CallerResolver) Option {
	return func(o *options) {
		if r != nil {
			o.callerResolver = r
		}
	}
}

// Gateway serves the federated schema over HTTP.
type Gateway struct {
	graphQLEndpoint string
	serviceName     string
	engine          *federation.Engine
	callerResolver  CallerResolver
	logger          *slog.Logger

	enableComplementRequestId bool
}

var _ http.Handler = (*Gateway)(nil)

// NewGateway discovers every configured queue and composes the result. It
// fails if any service cannot be introspected.
func NewGateway(ctx context.Context, settings GatewayOption, declarer federation.Declarer, caller *graphqlrpc.Caller, opts ...Option) (*Gateway, error) {
	o := newOptions(opts)

	sg, err := federation.Discover(ctx, declarer, caller, settings.Queues,
		federation.WithLogger(o.logger),
		federation.WithTracerProvider(o.tracerProvider),
		federation.WithDiscoveryTimeout(settings.RPC.DiscoveryTimeoutDuration()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", err)
	}
	return New(sg, settings, opts...), nil
}

// New serves an already composed supergraph.
func New(sg *federation.SuperGraph, settings GatewayOption, opts ...Option) *Gateway {
	o := newOptions(opts)
	engine := federation.NewEngine(sg,
		federation.WithLogger(o.logger),
		federation.WithTracerProvider(o.tracerProvider),
		federation.WithErrorFormatter(federation.ErrorFormatter{Debug: settings.Debug}),
	)
	return &Gateway{
		graphQLEndpoint:           settings.Endpoint,
		serviceName:               settings.ServiceName,
		engine:                    engine,
		callerResolver:            o.callerResolver,
		logger:                    o.logger,
		enableComplementRequestId: true,
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		callerResolver: AnonymousCallers,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SDL returns the composed schema.
func (g *Gateway) SDL() string {
	return g.engine.SuperGraph().SDL
}

func (g *Gateway) SuperGraph() *federation.SuperGraph {
	return g.engine.SuperGraph()
}

func (g *Gateway) Endpoint() string {
	return g.graphQLEndpoint
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.enableComplementRequestId {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("method not allowed"))
		return
	}

	var req federation.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err)))
		return
	}
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query is required"))
		return
	}
	req.Caller = g.callerResolver(r)

	res := g.engine.Execute(r.Context(), req)

	status := http.StatusOK
	if res.BadGateway {
		status = http.StatusBadGateway
		g.logger.WarnContext(r.Context(), "partial response, a service was unavailable",
			"request_id", w.Header().Get(requestIDHeader),
			"operation", req.OperationName,
			"errors", len(res.Errors),
		)
	}
	writeJSON(w, status, res)
}

func errorBody(msg string) *federation.Result {
	return &federation.Result{Errors: []federation.GraphQLError{{Message: msg}}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
