package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport consumes from a RabbitMQ queue with a prefetch of one.
// AMQP has no ack deadline: the broker holds an unacked delivery for as long
// as the channel stays open, so ExtendDeadline is a no-op here.
type AMQPTransport struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
	queue      string
}

// NewAMQPTransport dials the broker and starts a manual-ack consumer on the
// named queue.
func NewAMQPTransport(url, queue string) (*AMQPTransport, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.Qos(1, 0, false); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %q: %w", queue, err)
	}
	deliveries, err := channel.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("start consumer on %q: %w", queue, err)
	}
	return &AMQPTransport{
		conn:       conn,
		channel:    channel,
		deliveries: deliveries,
		queue:      queue,
	}, nil
}

func (t *AMQPTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery, ok := <-t.deliveries:
		if !ok {
			return nil, fmt.Errorf("amqp consumer channel closed")
		}
		return &Message{Body: delivery.Body, handle: delivery}, nil
	}
}

func (t *AMQPTransport) Ack(_ context.Context, msg *Message) error {
	delivery, err := t.delivery(msg)
	if err != nil {
		return err
	}
	return delivery.Ack(false)
}

// Nack requeues the delivery for another consumer attempt.
func (t *AMQPTransport) Nack(_ context.Context, msg *Message) error {
	delivery, err := t.delivery(msg)
	if err != nil {
		return err
	}
	return delivery.Nack(false, true)
}

// ExtendDeadline is a no-op: an unacked AMQP delivery never times out while
// the consuming channel is alive.
func (t *AMQPTransport) ExtendDeadline(context.Context, *Message, time.Duration) error {
	return nil
}

func (t *AMQPTransport) delivery(msg *Message) (amqp.Delivery, error) {
	delivery, ok := msg.handle.(amqp.Delivery)
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("message has no amqp delivery handle")
	}
	return delivery, nil
}

func (t *AMQPTransport) Close() error {
	if err := t.channel.Close(); err != nil {
		_ = t.conn.Close()
		return err
	}
	return t.conn.Close()
}
