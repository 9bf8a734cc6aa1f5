package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// DeliveryHandler xử lý một tin và tự chịu trách nhiệm Ack/Nack/Reject nó.
type DeliveryHandler func(ctx context.Context, d amqp.Delivery)

type ConsumerConfig struct {
	Tag                string
	DeadLetterExchange string
	// Prefetch mặc định là 1: mỗi lần chỉ giữ một tin chưa ack.
	Prefetch int
}

// Consumer đọc queue notification_processor và tự kết nối lại với backoff,
// khai báo lại topology sau mỗi lần kết nối. Chỉ dừng khi ctx bị huỷ.
type Consumer struct {
	mgr        *Manager
	cfg        ConsumerConfig
	log        zerolog.Logger
	newBackOff func() backoff.BackOff
}

func NewConsumer(mgr *Manager, cfg ConsumerConfig, log zerolog.Logger) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	return &Consumer{
		mgr: mgr,
		cfg: cfg,
		log: log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

func (c *Consumer) Run(ctx context.Context, handle DeliveryHandler) error {
	b := c.newBackOff()
	for {
		err := c.consume(ctx, handle, b)
		if ctx.Err() != nil {
			return nil
		}

		wait := b.NextBackOff()
		c.log.Warn().Err(err).Dur("retry_in", wait).Msg("notification consumer disconnected")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (c *Consumer) consume(ctx context.Context, handle DeliveryHandler, b backoff.BackOff) error {
	conn, err := c.mgr.Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := declareExchange(ch); err != nil {
		return err
	}
	if err := declareQueue(ch, c.cfg.DeadLetterExchange); err != nil {
		return err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))
	deliveries, err := ch.Consume(QueueName, c.cfg.Tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", QueueName, err)
	}

	b.Reset()
	c.log.Info().
		Str("queue", QueueName).
		Str("binding", BindingPattern).
		Int("prefetch", c.cfg.Prefetch).
		Msg("notification consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case amqpErr := <-closed:
			if amqpErr == nil {
				return errDeliveriesClosed
			}
			return fmt.Errorf("connection closed: %w", amqpErr)
		case d, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			handle(ctx, d)
		}
	}
}
