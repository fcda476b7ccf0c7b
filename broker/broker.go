// Package broker manages the physical connection to the message broker and the
// single channel that responders and RPC clients of a process share.
//
// Two transports are provided: AMQP 0-9-1 (RabbitMQ) and an in-process
// MemoryBroker with the same queue, prefetch and acknowledgement semantics.
package broker

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"
)

var (
	ErrChannelClosed  = errors.New("broker: channel closed")
	ErrQueueNotFound  = errors.New("broker: queue not found")
	ErrUnknownScheme  = errors.New("broker: unsupported url scheme")
	ErrNotConnected   = errors.New("broker: not connected")
	ErrConnectionLost = errors.New("broker: connection lost")
)

// Message is a single broker message as published or delivered.
type Message struct {
	Body          []byte
	CorrelationID string
	ReplyTo       string
	Timestamp     time.Time
	Headers       map[string]any
}

// Delivery is an inbound Message that must be acknowledged exactly once.
type Delivery struct {
	Message

	ack func() error
}

// NewDelivery wraps msg with the acknowledgement callback of its transport.
func NewDelivery(msg Message, ack func() error) Delivery {
	var once sync.Once
	var err error
	return Delivery{
		Message: msg,
		ack: func() error {
			once.Do(func() {
				if ack != nil {
					err = ack()
				}
			})
			return err
		},
	}
}

// Ack acknowledges the delivery. Repeated calls are no-ops.
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// QueueOptions mirrors the AMQP queue.declare flags the system uses.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
}

// Channel is a multiplexed session over a Transport.
type Channel interface {
	// Qos bounds the number of unacknowledged deliveries per consumer.
	Qos(prefetch int) error
	// DeclareQueue declares name, or a server-named queue when name is empty,
	// and returns the effective queue name.
	DeclareQueue(name string, opts QueueOptions) (string, error)
	// Consume starts a manual-ack consumer on queue.
	Consume(queue, consumer string) (<-chan Delivery, error)
	// Cancel stops the consumer; its delivery channel is closed.
	Cancel(consumer string) error
	// Publish sends msg to queue through the default exchange.
	Publish(ctx context.Context, queue string, msg Message) error
	Close() error
}

// Transport is one physical broker connection.
type Transport interface {
	Channel() (Channel, error)
	// NotifyClose yields an error if the connection is lost and is closed
	// once the transport shuts down.
	NotifyClose() <-chan error
	Close() error
}

// Dialer opens a Transport for a broker URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Transport, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, url string) (Transport, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Transport, error) {
	return f(ctx, url)
}

// DialerFor picks the transport for rawURL's scheme.
func DialerFor(rawURL string) (Dialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("broker: parse url: %w", err)
	}

	switch u.Scheme {
	case "amqp", "amqps":
		return AMQPDialer{}, nil
	case "memory":
		// every memory:// URL of a process reaches the same broker
		return sharedMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, u.Scheme)
	}
}

// redact strips credentials from rawURL for logging.
func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
