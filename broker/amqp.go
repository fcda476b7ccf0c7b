package broker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDialer connects to an AMQP 0-9-1 broker such as RabbitMQ.
type AMQPDialer struct{}

func (AMQPDialer) Dial(_ context.Context, url string) (Transport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return &amqpTransport{conn: conn}, nil
}

type amqpTransport struct {
	conn *amqp.Connection
}

func (t *amqpTransport) Channel() (Channel, error) {
	ch, err := t.conn.Channel()
	if err != nil {
		return nil, err
	}
	return &amqpChannel{ch: ch}, nil
}

func (t *amqpTransport) NotifyClose() <-chan error {
	errs := make(chan error, 1)
	closed := t.conn.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		defer close(errs)
		if amqpErr, ok := <-closed; ok && amqpErr != nil {
			errs <- fmt.Errorf("%w: %v", ErrConnectionLost, amqpErr)
		}
	}()
	return errs
}

func (t *amqpTransport) Close() error {
	if t.conn.IsClosed() {
		return nil
	}
	return t.conn.Close()
}

type amqpChannel struct {
	ch *amqp.Channel

	// serialises frames of concurrent publishers
	publishMu sync.Mutex
}

func (c *amqpChannel) Qos(prefetch int) error {
	return c.ch.Qos(prefetch, 0, false)
}

func (c *amqpChannel) DeclareQueue(name string, opts QueueOptions) (string, error) {
	q, err := c.ch.QueueDeclare(name, opts.Durable, opts.AutoDelete, opts.Exclusive, false, nil)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

func (c *amqpChannel) Consume(queue, consumer string) (<-chan Delivery, error) {
	deliveries, err := c.ch.Consume(queue, consumer, false, false, false, false, nil)
	if err != nil {
		return nil, err
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range deliveries {
			out <- NewDelivery(fromAMQP(d), func() error {
				return d.Ack(false)
			})
		}
	}()
	return out, nil
}

func (c *amqpChannel) Cancel(consumer string) error {
	return c.ch.Cancel(consumer, false)
}

func (c *amqpChannel) Publish(ctx context.Context, queue string, msg Message) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	return c.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: msg.CorrelationID,
		ReplyTo:       msg.ReplyTo,
		Timestamp:     msg.Timestamp,
		Headers:       amqp.Table(msg.Headers),
		Body:          msg.Body,
	})
}

func (c *amqpChannel) Close() error {
	if c.ch.IsClosed() {
		return nil
	}
	return c.ch.Close()
}

func fromAMQP(d amqp.Delivery) Message {
	headers := make(map[string]any, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = v
	}
	return Message{
		Body:          d.Body,
		CorrelationID: d.CorrelationId,
		ReplyTo:       d.ReplyTo,
		Timestamp:     d.Timestamp,
		Headers:       headers,
	}
}
