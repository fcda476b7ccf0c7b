package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

const memoryQueueCapacity = 4096

// ErrResourceLocked is returned when declaring or consuming an exclusive queue
// owned by another connection.
var ErrResourceLocked = errors.New("broker: exclusive queue owned by another connection")

var sharedMemory = sync.OnceValue(NewMemoryBroker)

// MemoryBroker is an in-process broker. It routes through the default exchange
// only, supports server-named exclusive queues, per-consumer prefetch and
// manual acknowledgement. Messages to undeclared queues are dropped.
type MemoryBroker struct {
	mu         sync.Mutex
	queues     map[string]*memoryQueue
	transports map[*memoryTransport]struct{}
	dialErr    error
	dials      int
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		queues:     make(map[string]*memoryQueue),
		transports: make(map[*memoryTransport]struct{}),
	}
}

func (b *MemoryBroker) Dial(ctx context.Context, _ string) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++
	if b.dialErr != nil {
		return nil, b.dialErr
	}

	t := &memoryTransport{
		broker: b,
		closed: make(chan struct{}),
		notify: make(chan error, 1),
	}
	b.transports[t] = struct{}{}
	return t, nil
}

// SetUnavailable makes every following Dial fail with err. A nil err makes the
// broker reachable again.
func (b *MemoryBroker) SetUnavailable(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

// Dials reports how many Dial attempts were made.
func (b *MemoryBroker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Sever drops every open connection with err, as a broker restart would.
func (b *MemoryBroker) Sever(err error) {
	b.mu.Lock()
	transports := make([]*memoryTransport, 0, len(b.transports))
	for t := range b.transports {
		transports = append(transports, t)
	}
	b.mu.Unlock()

	for _, t := range transports {
		t.shutdown(fmt.Errorf("%w: %v", ErrConnectionLost, err))
	}
}

// Depth reports the number of ready messages in queue.
func (b *MemoryBroker) Depth(queue string) int {
	q := b.lookup(queue)
	if q == nil {
		return 0
	}
	return len(q.ready)
}

// Unacked reports the number of delivered but unacknowledged messages in queue.
func (b *MemoryBroker) Unacked(queue string) int {
	q := b.lookup(queue)
	if q == nil {
		return 0
	}
	return int(q.unacked.Load())
}

// HasQueue reports whether queue is declared.
func (b *MemoryBroker) HasQueue(queue string) bool {
	return b.lookup(queue) != nil
}

func (b *MemoryBroker) lookup(name string) *memoryQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queues[name]
}

func (b *MemoryBroker) declare(name string, opts QueueOptions, owner *memoryTransport) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if name == "" {
		name = "amq.gen-" + uuid.NewString()
	}

	if q, ok := b.queues[name]; ok {
		if q.owner != nil && q.owner != owner {
			return "", fmt.Errorf("%w: %s", ErrResourceLocked, name)
		}
		return name, nil
	}

	q := &memoryQueue{
		name:    name,
		ready:   make(chan Message, memoryQueueCapacity),
		deleted: make(chan struct{}),
	}
	if opts.Exclusive {
		q.owner = owner
	}
	b.queues[name] = q
	return name, nil
}

func (b *MemoryBroker) release(t *memoryTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.transports, t)
	for name, q := range b.queues {
		if q.owner == t {
			delete(b.queues, name)
			close(q.deleted)
		}
	}
}

type memoryQueue struct {
	name    string
	owner   *memoryTransport
	ready   chan Message
	deleted chan struct{}
	unacked atomic.Int64
}

func (q *memoryQueue) requeue(msg Message) {
	select {
	case q.ready <- msg:
	default:
	}
}

type memoryTransport struct {
	broker *MemoryBroker

	once   sync.Once
	closed chan struct{}
	notify chan error

	mu       sync.Mutex
	channels []*memoryChannel
}

func (t *memoryTransport) Channel() (Channel, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	select {
	case <-t.closed:
		return nil, ErrNotConnected
	default:
	}

	ch := &memoryChannel{
		transport: t,
		consumers: make(map[string]*memoryConsumer),
	}
	t.channels = append(t.channels, ch)
	return ch, nil
}

func (t *memoryTransport) NotifyClose() <-chan error {
	return t.notify
}

func (t *memoryTransport) Close() error {
	t.shutdown(nil)
	return nil
}

func (t *memoryTransport) shutdown(cause error) {
	t.once.Do(func() {
		close(t.closed)

		t.mu.Lock()
		channels := t.channels
		t.channels = nil
		t.mu.Unlock()

		for _, ch := range channels {
			ch.Close()
		}
		t.broker.release(t)

		if cause != nil {
			t.notify <- cause
		}
		close(t.notify)
	})
}

type memoryChannel struct {
	transport *memoryTransport

	mu        sync.Mutex
	prefetch  int
	closed    bool
	consumers map[string]*memoryConsumer
}

func (c *memoryChannel) Qos(prefetch int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	c.prefetch = prefetch
	return nil
}

func (c *memoryChannel) DeclareQueue(name string, opts QueueOptions) (string, error) {
	if c.isClosed() {
		return "", ErrChannelClosed
	}
	return c.transport.broker.declare(name, opts, c.transport)
}

func (c *memoryChannel) Consume(queue, consumer string) (<-chan Delivery, error) {
	q := c.transport.broker.lookup(queue)
	if q == nil {
		return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, queue)
	}
	if q.owner != nil && q.owner != c.transport {
		return nil, fmt.Errorf("%w: %s", ErrResourceLocked, queue)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChannelClosed
	}
	if consumer == "" {
		consumer = "ctag-" + uuid.NewString()
	}
	if _, ok := c.consumers[consumer]; ok {
		return nil, fmt.Errorf("broker: consumer tag %q already in use", consumer)
	}

	mc := &memoryConsumer{
		out:  make(chan Delivery),
		done: make(chan struct{}),
	}
	if c.prefetch > 0 {
		mc.credit = make(chan struct{}, c.prefetch)
	}
	c.consumers[consumer] = mc

	go mc.run(q)
	return mc.out, nil
}

func (c *memoryChannel) Cancel(consumer string) error {
	c.mu.Lock()
	mc, ok := c.consumers[consumer]
	delete(c.consumers, consumer)
	c.mu.Unlock()

	if ok {
		mc.stop()
	}
	return nil
}

func (c *memoryChannel) Publish(ctx context.Context, queue string, msg Message) error {
	if c.isClosed() {
		return ErrChannelClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	q := c.transport.broker.lookup(queue)
	if q == nil {
		return nil
	}

	headers := make(map[string]any, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	msg.Headers = headers
	msg.Body = append([]byte(nil), msg.Body...)

	select {
	case q.ready <- msg:
		return nil
	case <-q.deleted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *memoryChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	consumers := c.consumers
	c.consumers = nil
	c.mu.Unlock()

	for _, mc := range consumers {
		mc.stop()
	}
	return nil
}

func (c *memoryChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type memoryConsumer struct {
	out    chan Delivery
	done   chan struct{}
	once   sync.Once
	credit chan struct{}
}

func (mc *memoryConsumer) stop() {
	mc.once.Do(func() { close(mc.done) })
}

func (mc *memoryConsumer) release() {
	if mc.credit == nil {
		return
	}
	select {
	case <-mc.credit:
	default:
	}
}

func (mc *memoryConsumer) run(q *memoryQueue) {
	defer close(mc.out)

	for {
		if mc.credit != nil {
			select {
			case mc.credit <- struct{}{}:
			case <-mc.done:
				return
			case <-q.deleted:
				return
			}
		}

		var msg Message
		select {
		case msg = <-q.ready:
		case <-mc.done:
			mc.release()
			return
		case <-q.deleted:
			mc.release()
			return
		}

		q.unacked.Add(1)
		d := NewDelivery(msg, func() error {
			q.unacked.Add(-1)
			mc.release()
			return nil
		})

		select {
		case mc.out <- d:
		case <-mc.done:
			d.Ack()
			q.requeue(msg)
			return
		case <-q.deleted:
			d.Ack()
			return
		}
	}
}
