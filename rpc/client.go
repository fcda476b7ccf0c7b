package rpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/n9te9/go-graphql-rpc-gateway/broker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type reply struct {
	body json.RawMessage
	err  error
}

// Client issues requests and routes replies back to their callers by
// correlation id. It owns one exclusive reply queue, declared by InitSending.
//
// With no call timeout and a context that never ends, a request that is
// dropped by the responder keeps its pending entry for the client lifetime.
type Client struct {
	ch      broker.Channel
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	timeout time.Duration
	now     func() time.Time

	seq atomic.Uint64

	mu         sync.Mutex
	pending    map[string]chan reply
	replyQueue string
	consumer   string
	closed     bool
}

func NewClient(ch broker.Channel, opts ...Option) *Client {
	o := newOptions(opts)
	return &Client{
		ch:      ch,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  tracer(o.tracerProvider),
		timeout: o.callTimeout,
		now:     o.now,
		pending: make(map[string]chan reply),
	}
}

// InitSending declares the reply queue and starts dispatching replies.
// Calling it again is a no-op.
func (c *Client) InitSending(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	if c.replyQueue != "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	queue, err := c.ch.DeclareQueue("", broker.QueueOptions{Exclusive: true, AutoDelete: true})
	if err != nil {
		return fmt.Errorf("rpc: declare reply queue: %w", err)
	}

	consumer := "rpc-client-" + uuid.NewString()
	deliveries, err := c.ch.Consume(queue, consumer)
	if err != nil {
		return fmt.Errorf("rpc: consume reply queue %s: %w", queue, err)
	}

	c.replyQueue = queue
	c.consumer = consumer
	go c.dispatch(deliveries)

	c.logger.Debug("rpc client ready", "reply_queue", queue)
	return nil
}

// ReplyQueue returns the reply queue name, or "" before InitSending.
func (c *Client) ReplyQueue() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replyQueue
}

// Pending reports the number of calls waiting for a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Client) dispatch(deliveries <-chan broker.Delivery) {
	for d := range deliveries {
		if err := d.Ack(); err != nil {
			c.logger.Warn("rpc reply ack failed", "error", err)
		}
		c.resolve(d.Message)
	}

	// The reply stream only ends on Close or on connection loss; either way
	// no pending call can be answered any more.
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.failPending(broker.ErrConnectionLost)
}

func (c *Client) resolve(msg broker.Message) {
	c.mu.Lock()
	waiter, ok := c.pending[msg.CorrelationID]
	delete(c.pending, msg.CorrelationID)
	n := len(c.pending)
	c.mu.Unlock()

	if !ok {
		c.metrics.recordUnmatched()
		c.logger.Debug("rpc reply without pending call ignored", "correlation_id", msg.CorrelationID)
		return
	}
	c.metrics.setPending(n)

	r := reply{body: json.RawMessage(msg.Body)}
	if text, isErr := headerString(msg.Headers, HeaderRemoteError); isErr {
		r.err = &RemoteError{Message: text}
	}
	waiter <- r
}

func (c *Client) register(id string) (chan reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}
	if c.replyQueue == "" {
		return nil, ErrNotInitialized
	}

	waiter := make(chan reply, 1)
	c.pending[id] = waiter
	c.metrics.setPending(len(c.pending))
	return waiter, nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	n := len(c.pending)
	c.mu.Unlock()

	c.metrics.setPending(n)
}

// Call publishes data as JSON to queue and waits for the correlated reply.
func (c *Client) Call(ctx context.Context, queue string, data any) (json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("rpc: encode request for %q: %w", queue, err)
	}

	id := strconv.FormatUint(c.seq.Add(1), 10)
	waiter, err := c.register(id)
	if err != nil {
		return nil, fmt.Errorf("rpc: call %q: %w", queue, err)
	}

	ctx, span := c.tracer.Start(ctx, "rpc.call "+queue,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queue),
			attribute.String("messaging.message.conversation_id", id),
		),
	)
	defer span.End()

	start := c.now()
	body, err = c.await(ctx, queue, id, body, waiter)
	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	c.metrics.recordCall(queue, outcome, c.now().Sub(start))
	return body, err
}

func (c *Client) await(ctx context.Context, queue, id string, body []byte, waiter chan reply) (json.RawMessage, error) {
	env := &Envelope{
		Payload:       body,
		CorrelationID: id,
		ReplyTo:       c.ReplyQueue(),
		Timestamp:     c.now(),
		Headers:       map[string]any{},
	}
	inject(ctx, env.Headers)

	if err := c.ch.Publish(ctx, queue, env.message()); err != nil {
		c.forget(id)
		return nil, fmt.Errorf("rpc: publish to %q: %w", queue, err)
	}

	var expired <-chan time.Time
	if c.timeout > 0 {
		timer := time.NewTimer(c.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r := <-waiter:
		var remote *RemoteError
		if errors.As(r.err, &remote) {
			remote.Queue = queue
			return nil, remote
		}
		if r.err != nil {
			return nil, fmt.Errorf("rpc: call %q: %w", queue, r.err)
		}
		return r.body, nil
	case <-expired:
		c.forget(id)
		return nil, fmt.Errorf("%w: no reply from %q within %s", ErrCallTimeout, queue, c.timeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Notify publishes data to queue without a reply address. It does not need
// InitSending.
func (c *Client) Notify(ctx context.Context, queue string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("rpc: encode notification for %q: %w", queue, err)
	}

	env := &Envelope{
		Payload:       body,
		CorrelationID: strconv.FormatUint(c.seq.Add(1), 10),
		Timestamp:     c.now(),
		Headers:       map[string]any{},
	}
	inject(ctx, env.Headers)

	if err := c.ch.Publish(ctx, queue, env.message()); err != nil {
		return fmt.Errorf("rpc: publish to %q: %w", queue, err)
	}
	return nil
}

// Close stops reply dispatching and fails every pending call with
// ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumer := c.consumer
	c.mu.Unlock()

	c.failPending(ErrClientClosed)

	if consumer != "" {
		if err := c.ch.Cancel(consumer); err != nil {
			return fmt.Errorf("rpc: cancel reply consumer: %w", err)
		}
	}
	return nil
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]chan reply)
	c.mu.Unlock()

	for _, waiter := range pending {
		waiter <- reply{err: err}
	}
	c.metrics.setPending(0)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, new(*RemoteError)):
		return "remote_error"
	case errors.Is(err, ErrCallTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
