package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Responder consumes named queues and replies to requests. Each delivery is
// handled in its own goroutine; the channel prefetch bounds how many run at once.
type Responder struct {
	ch         broker.Channel
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
	ttl        time.Duration
	now        func() time.Time
	middleware Middleware
}

func NewResponder(ch broker.Channel, opts ...Option) *Responder {
	o := newOptions(opts)
	return &Responder{
		ch:         ch,
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     tracer(o.tracerProvider),
		ttl:        o.messageTTL,
		now:        o.now,
		middleware: Chain(o.middleware...),
	}
}

// Receive declares queue (non-durable) and serves its requests with h until
// ctx ends or the delivery stream closes. It returns after in-flight
// handlers have finished.
func (r *Responder) Receive(ctx context.Context, queue string, h Handler) error {
	if _, err := r.ch.DeclareQueue(queue, broker.QueueOptions{}); err != nil {
		return fmt.Errorf("rpc: declare queue %q: %w", queue, err)
	}

	consumer := queue + "-" + uuid.NewString()
	deliveries, err := r.ch.Consume(queue, consumer)
	if err != nil {
		return fmt.Errorf("rpc: consume queue %q: %w", queue, err)
	}

	h = r.middleware(h)
	r.logger.Info("rpc responder listening", "queue", queue)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			if err := r.ch.Cancel(consumer); err != nil {
				r.logger.Warn("rpc consumer cancel failed", "queue", queue, "error", err)
			}
			// drain so the transport can release its buffered deliveries
			go func() {
				for range deliveries {
				}
			}()
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.handle(ctx, queue, h, d)
			}()
		}
	}
}

func (r *Responder) handle(ctx context.Context, queue string, h Handler, d broker.Delivery) {
	defer func() {
		if err := d.Ack(); err != nil {
			r.logger.Warn("rpc ack failed", "queue", queue, "correlation_id", d.CorrelationID, "error", err)
		}
	}()

	env := envelopeFrom(d.Message)
	if env.Stale(r.now(), r.ttl) {
		r.metrics.recordStale(queue)
		r.logger.Info("rpc request dropped after ttl",
			"queue", queue,
			"correlation_id", env.CorrelationID,
			"age", r.now().Sub(env.Timestamp),
			"ttl", r.ttl,
		)
		return
	}

	// Replies must still go out after shutdown has begun.
	ctx = context.WithoutCancel(ctx)
	ctx = extract(ctx, env.Headers)
	ctx, span := r.tracer.Start(ctx, "rpc.handle "+queue,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queue),
			attribute.String("messaging.message.conversation_id", env.CorrelationID),
		),
	)
	defer span.End()

	r.metrics.inFlight(queue, 1)
	start := r.now()
	result, err := r.invoke(ctx, h, env)
	r.metrics.inFlight(queue, -1)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		var p *panicError
		if errors.As(err, &p) {
			outcome = "panic"
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		r.logger.ErrorContext(ctx, "rpc handler failed", "queue", queue, "correlation_id", env.CorrelationID, "error", err)
	}
	r.metrics.recordHandled(queue, outcome, r.now().Sub(start))

	if env.ReplyTo == "" {
		return
	}
	if err := r.reply(ctx, env, result, err); err != nil {
		r.logger.ErrorContext(ctx, "rpc reply failed", "queue", queue, "reply_to", env.ReplyTo, "correlation_id", env.CorrelationID, "error", err)
	}
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("handler panic: %v", p.value)
}

func (r *Responder) invoke(ctx context.Context, h Handler, env *Envelope) (result any, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v, stack: debug.Stack()}
			r.logger.ErrorContext(ctx, "rpc handler panic", "panic", v, "stack", string(err.(*panicError).stack))
		}
	}()
	return h.ServeRPC(ctx, env)
}

func (r *Responder) reply(ctx context.Context, req *Envelope, result any, handlerErr error) error {
	out := &Envelope{
		CorrelationID: req.CorrelationID,
		Timestamp:     r.now(),
		Headers:       map[string]any{},
	}

	if handlerErr != nil {
		out.Headers[HeaderRemoteError] = handlerErr.Error()
		out.Payload = json.RawMessage("null")
	} else {
		body, err := json.Marshal(result)
		if err != nil {
			out.Headers[HeaderRemoteError] = fmt.Sprintf("encode result: %v", err)
			body = []byte("null")
		}
		out.Payload = body
	}

	return r.ch.Publish(ctx, req.ReplyTo, out.message())
}
