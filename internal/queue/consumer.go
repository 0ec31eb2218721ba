package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"
)

// Retrier re-enqueues a failed job under its next attempt number.
type Retrier interface {
	PublishAttempt(ctx context.Context, j Job, attempt int) error
}

// ConsumerConfig bounds the consumer's concurrency and retry policy.
type ConsumerConfig struct {
	Workers     int
	MaxAttempts int
	BaseDelay   time.Duration
}

// Consumer runs a pool of workers over mail deliveries. A delivery is acked
// only after its handler succeeded or after it was re-enqueued, so a crash
// mid-job leads to redelivery rather than loss.
type Consumer struct {
	handler Handler
	retry   Retrier
	log     *slog.Logger
	cfg     ConsumerConfig
	wait    func(ctx context.Context, d time.Duration) error
}

func NewConsumer(h Handler, r Retrier, log *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 5 * time.Second
	}
	return &Consumer{handler: h, retry: r, log: log, cfg: cfg, wait: sleep}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start consumes queue until ctx is cancelled, reconnecting with a capped
// exponential backoff whenever the broker connection drops.
func (c *Consumer) Start(ctx context.Context, url, queue string) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			c.log.Warn("mail.consumer.dial_failed", "err", err, "retry_in", backoff)
			if err := c.wait(ctx, backoff); err != nil {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn, queue)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("mail.consumer.reconnecting", "err", err)
		if err := c.wait(ctx, 2*time.Second); err != nil {
			return nil
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection, queue string) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(c.cfg.Workers*2, 0, false); err != nil {
		c.log.Warn("mail.consumer.qos_failed", "err", err)
	}
	if err := declare(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("mail.consumer.started", "queue", queue, "workers", c.cfg.Workers)
	return c.Run(ctx, msgs)
}

// Run fans deliveries out to the worker pool. It returns when ctx is done
// or deliveries is closed.
func (c *Consumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < c.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return errors.New("deliveries channel closed")
					}
					c.handle(ctx, d)
				}
			}
		})
	}
	return g.Wait()
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	attempt := attemptOf(d)
	job, err := Decode(d.Body)
	if err != nil {
		c.log.Error("mail.job.malformed", "err", err)
		_ = d.Nack(false, false)
		return
	}
	log := c.log.With("kind", job.Kind().String(), "attempt", attempt)

	err = Dispatch(ctx, c.handler, job)
	if err == nil {
		log.Info("mail.job.done")
		_ = d.Ack(false)
		return
	}
	if attempt >= c.cfg.MaxAttempts {
		log.Error("mail.job.failed", "err", err)
		_ = d.Nack(false, false)
		return
	}

	delay := c.backoff(attempt)
	log.Warn("mail.job.retry", "err", err, "delay", delay)
	if err := c.wait(ctx, delay); err != nil {
		_ = d.Nack(false, true)
		return
	}
	if err := c.retry.PublishAttempt(ctx, job, attempt+1); err != nil {
		log.Error("mail.job.requeue_failed", "err", err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// backoff returns BaseDelay doubled for every attempt after the first.
func (c *Consumer) backoff(attempt int) time.Duration {
	return c.cfg.BaseDelay << (attempt - 1)
}

func attemptOf(d amqp.Delivery) int {
	var n int
	switch v := d.Headers[AttemptHeader].(type) {
	case int32:
		n = int(v)
	case int64:
		n = int(v)
	case int16:
		n = int(v)
	case int8:
		n = int(v)
	case int:
		n = v
	}
	if n < 1 {
		return 1
	}
	return n
}
