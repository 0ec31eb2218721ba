package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader carries the 1-based delivery attempt of a job.
const AttemptHeader = "x-attempt"

// Publisher publishes mail jobs to a durable queue on the default exchange.
type Publisher struct {
	conn  *amqp.Connection
	queue string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher declares queue (durable, idempotent) and returns a publisher
// bound to it.
func NewPublisher(conn *amqp.Connection, queue string) (*Publisher, error) {
	p := &Publisher{conn: conn, queue: queue}
	ch, err := p.channel()
	if err != nil {
		return nil, err
	}
	if err := declare(ch, queue); err != nil {
		return nil, err
	}
	return p, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("queue declare %s: %w", queue, err)
	}
	return nil
}

// channel returns the shared channel, reopening it after the broker closed it.
func (p *Publisher) channel() (*amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel open: %w", err)
	}
	p.ch = ch
	return ch, nil
}

// Publish enqueues the first attempt of j.
func (p *Publisher) Publish(ctx context.Context, j Job) error {
	return p.PublishAttempt(ctx, j, 1)
}

// PublishAttempt enqueues j tagged with the given attempt number. Messages
// are persistent.
func (p *Publisher) PublishAttempt(ctx context.Context, j Job, attempt int) error {
	body, err := Encode(j)
	if err != nil {
		return err
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         j.Kind().String(),
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		return fmt.Errorf("publish %s: %w", j.Kind(), err)
	}
	return nil
}

// Close releases the publisher channel. The connection belongs to the caller.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil || p.ch.IsClosed() {
		return nil
	}
	return p.ch.Close()
}
