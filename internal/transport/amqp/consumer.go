// Package amqp feeds push events from a durable RabbitMQ queue into the
// dispatcher. Each delivery is one push; its body is passed through
// verbatim.
package amqp

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"pushgate/internal/dispatch"
	"pushgate/internal/host"
	"pushgate/internal/transport"
	"pushgate/pkg/logx"
)

type Config struct {
	URL         string
	Queue       string
	Prefetch    int
	ConsumerTag string
}

type Consumer struct {
	cfg  Config
	disp transport.Dispatcher
	log  logx.Logger
}

func NewConsumer(cfg Config, disp transport.Dispatcher, log logx.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Consumer{cfg: cfg, disp: disp, log: log.With(logx.String("comp", "amqp"), logx.String("queue", cfg.Queue))}
}

// Run consumes over one connection until ctx is done (nil) or the
// connection breaks (error). Callers restart it with backoff.
func (c *Consumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", c.cfg.Queue, err)
	}
	msgs, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	c.log.Info("amqp consumer started", logx.Int("prefetch", c.cfg.Prefetch))

	for {
		select {
		case <-ctx.Done():
			return nil
		case aerr, ok := <-closed:
			if !ok || aerr == nil {
				return errors.New("amqp connection closed")
			}
			return aerr
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			c.Handle(ctx, d)
		}
	}
}

// Handle dispatches one delivery and settles it. A dispatch error drops the
// message; a stopping dispatcher hands it back to the broker.
func (c *Consumer) Handle(ctx context.Context, d amqp.Delivery) {
	source := "amqp"
	if s, ok := d.Headers["source"].(string); ok && s != "" {
		source = s
	}
	ev := host.NewPushEvent(source, d.Body, len(d.Body) > 0)

	_, err := c.disp.Dispatch(ctx, dispatch.PushOf(ev))
	switch {
	case err == nil:
		if aerr := d.Ack(false); aerr != nil {
			c.log.Warn("ack failed", logx.Err(aerr), logx.Uint64("tag", d.DeliveryTag))
		}
	case errors.Is(err, dispatch.ErrStopped) || ctx.Err() != nil:
		_ = d.Nack(false, true)
	default:
		c.log.Warn("push dispatch failed; dropping delivery", logx.String("push", ev.ID), logx.Err(err))
		_ = d.Nack(false, false)
	}
}
