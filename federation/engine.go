package federation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/n9te9/go-graphql-rpc-gateway/graphqlrpc"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Request is a client GraphQL request.
type Request struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`

	// Caller is forwarded to every subschema. Nil means the executor's
	// default identity.
	Caller *graphqlrpc.CallerContext `json:"-"`
}

// Result is the merged response. BadGateway is set when at least one
// subschema could not be reached.
type Result struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     []GraphQLError  `json:"errors,omitempty"`
	BadGateway bool            `json:"-"`
}

// Engine executes client operations against a SuperGraph.
type Engine struct {
	superGraph *SuperGraph
	formatter  ErrorFormatter
	logger     *slog.Logger
	tracer     trace.Tracer
}

func NewEngine(sg *SuperGraph, opts ...Option) *Engine {
	o := newOptions(opts)
	return &Engine{
		superGraph: sg,
		formatter:  o.formatter,
		logger:     o.logger,
		tracer:     o.tracerProvider.Tracer(tracerName),
	}
}

func (e *Engine) SuperGraph() *SuperGraph {
	return e.superGraph
}

// stepResult is what one step contributed.
type stepResult struct {
	data   map[string]json.RawMessage
	errors []GraphQLError
	failed bool
}

// Execute validates, plans and runs req. Validation failures produce a
// result with errors and no data.
func (e *Engine) Execute(ctx context.Context, req Request) *Result {
	ctx, span := e.tracer.Start(ctx, "federation.execute",
		trace.WithAttributes(attribute.String("graphql.operation.name", req.OperationName)),
	)
	defer span.End()

	doc, errs := gqlparser.LoadQuery(e.superGraph.AST, req.Query)
	if len(errs) > 0 {
		span.SetStatus(codes.Error, "invalid operation")
		return &Result{Errors: e.formatter.FormatAll(fromGQLErrors(errs))}
	}

	op, err := SelectOperation(doc, req.OperationName)
	if err != nil {
		return &Result{Errors: []GraphQLError{{Message: err.Error()}}}
	}

	coerced, verr := validator.VariableValues(e.superGraph.AST, op, req.Variables)
	if verr != nil {
		return &Result{Errors: e.formatter.FormatAll(fromValidationError(verr))}
	}

	plan, err := e.superGraph.Plan(doc, op, coerced)
	if err != nil {
		return &Result{Errors: []GraphQLError{{Message: err.Error()}}}
	}
	// Subschemas receive the variables as the client sent them.
	for _, step := range plan.Steps {
		for name := range step.Variables {
			if v, ok := req.Variables[name]; ok {
				step.Variables[name] = v
			} else {
				delete(step.Variables, name)
			}
		}
	}

	results := make([]stepResult, len(plan.Steps))
	if plan.Operation == ast.Mutation {
		for i, step := range plan.Steps {
			results[i] = e.runStep(ctx, step, req.Caller)
		}
	} else {
		var g errgroup.Group
		for i, step := range plan.Steps {
			g.Go(func() error {
				results[i] = e.runStep(ctx, step, req.Caller)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := &Result{}
	owner := make(map[string]int, len(plan.Keys))
	for i, step := range plan.Steps {
		for _, key := range step.Keys {
			owner[key] = i
		}
		out.Errors = append(out.Errors, results[i].errors...)
		if results[i].failed {
			out.BadGateway = true
		}
	}

	proj := &projector{superGraph: e.superGraph, vars: coerced}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range plan.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeKey(&buf, key)

		if fields, ok := plan.local[key]; ok {
			buf.Write(proj.root(fields, plan.RootType))
			continue
		}
		v, ok := results[owner[key]].data[key]
		if !ok || len(v) == 0 {
			buf.WriteString("null")
			continue
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	out.Data = buf.Bytes()

	out.Errors = e.formatter.FormatAll(out.Errors)
	if out.BadGateway {
		span.SetStatus(codes.Error, "subschema unavailable")
	}
	return out
}

func (e *Engine) runStep(ctx context.Context, step *Step, caller *graphqlrpc.CallerContext) stepResult {
	queue := step.Subschema.Queue
	ctx, span := e.tracer.Start(ctx, "federation.step", trace.WithAttributes(
		attribute.String("rpc.queue", queue),
		attribute.StringSlice("graphql.fields", step.Keys),
	))
	defer span.End()

	resp, err := step.Subschema.Executor(ctx, &graphqlrpc.Request{
		Query:         step.Query,
		Variables:     step.Variables,
		OperationName: step.OperationName,
		Context:       caller,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.ErrorContext(ctx, "subschema request failed", "queue", queue, "error", err)

		res := stepResult{failed: true}
		for _, key := range step.Keys {
			res.errors = append(res.errors, GraphQLError{
				Message: fmt.Sprintf("failed to fetch %q from %s: %v", key, queue, err),
				Path:    []any{key},
				Extensions: map[string]any{
					"serviceName": queue,
					"code":        "SUBSCHEMA_UNAVAILABLE",
				},
			})
		}
		return res
	}

	res := stepResult{}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &res.data); err != nil {
			e.logger.ErrorContext(ctx, "subschema returned malformed data", "queue", queue, "error", err)
			res.errors = append(res.errors, GraphQLError{
				Message:    fmt.Sprintf("malformed data from %s", queue),
				Extensions: map[string]any{"serviceName": queue},
			})
		}
	}
	for _, se := range resp.Errors {
		ext := make(map[string]any, len(se.Extensions)+1)
		for k, v := range se.Extensions {
			ext[k] = v
		}
		ext["serviceName"] = queue
		// Locations refer to the rewritten operation and are dropped.
		res.errors = append(res.errors, GraphQLError{
			Message:    se.Message,
			Path:       se.Path,
			Extensions: ext,
		})
	}
	return res
}

func writeKey(buf *bytes.Buffer, key string) {
	b, _ := json.Marshal(key)
	buf.Write(b)
	buf.WriteByte(':')
}

func fromGQLErrors(list gqlerror.List) []GraphQLError {
	out := make([]GraphQLError, 0, len(list))
	for _, e := range list {
		if e == nil {
			continue
		}
		ge := GraphQLError{Message: e.Message, Extensions: e.Extensions}
		for _, l := range e.Locations {
			ge.Locations = append(ge.Locations, graphqlrpc.Location{Line: l.Line, Column: l.Column})
		}
		for _, p := range e.Path {
			switch p := p.(type) {
			case ast.PathName:
				ge.Path = append(ge.Path, string(p))
			case ast.PathIndex:
				ge.Path = append(ge.Path, int(p))
			}
		}
		out = append(out, ge)
	}
	return out
}

func fromValidationError(err error) []GraphQLError {
	var list gqlerror.List
	if errors.As(err, &list) {
		return fromGQLErrors(list)
	}
	var ge *gqlerror.Error
	if errors.As(err, &ge) {
		return fromGQLErrors(gqlerror.List{ge})
	}
	return []GraphQLError{{Message: err.Error()}}
}
