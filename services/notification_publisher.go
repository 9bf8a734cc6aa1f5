package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/vnkhanh/forum-notify-backend/broker"
	"github.com/vnkhanh/forum-notify-backend/models"
)

// DurableQueue là hàng đợi bền (RabbitMQ). *broker.Manager thoả mãn interface này.
type DurableQueue interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

const defaultPublishTimeout = 3 * time.Second

// NotificationPublisher gửi cùng một envelope lên kênh phát và hàng đợi bền.
// Hai lần gửi độc lập: lỗi ở kênh này không chặn hay huỷ kênh kia.
type NotificationPublisher struct {
	broadcast Broadcaster
	queue     DurableQueue
	log       zerolog.Logger
	timeout   time.Duration
}

func NewNotificationPublisher(broadcast Broadcaster, queue DurableQueue, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{
		broadcast: broadcast,
		queue:     queue,
		log:       log,
		timeout:   defaultPublishTimeout,
	}
}

// Publish chỉ được gọi sau khi hàng đã commit. Lỗi trả về đã được log,
// caller không được coi nó là lỗi tạo thông báo.
func (p *NotificationPublisher) Publish(ctx context.Context, env models.NotificationEnvelope) error {
	body, err := env.Marshal()
	if err != nil {
		p.log.Error().Err(err).Str("notification_id", env.ID.String()).Msg("cannot encode envelope")
		return err
	}

	// Không để request bị huỷ làm mất tin đã commit.
	base := context.WithoutCancel(ctx)

	var errs []error
	if err := p.publishBroadcast(base, env, body); err != nil {
		errs = append(errs, err)
	}
	if err := p.publishDurable(base, env, body); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (p *NotificationPublisher) publishBroadcast(ctx context.Context, env models.NotificationEnvelope, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.broadcast.Publish(ctx, env.UserID, body); err != nil {
		p.log.Warn().Err(err).
			Str("user_id", env.UserID.String()).
			Str("notification_id", env.ID.String()).
			Msg("broadcast publish failed, live clients miss this notification")
		return fmt.Errorf("broadcast: %w", err)
	}
	return nil
}

func (p *NotificationPublisher) publishDurable(ctx context.Context, env models.NotificationEnvelope, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	key := broker.RoutingKey(env.UserID)
	if err := p.queue.Publish(ctx, key, body); err != nil {
		p.log.Error().Err(err).
			Str("routing_key", key).
			Str("notification_id", env.ID.String()).
			Msg("durable publish failed")
		return fmt.Errorf("durable: %w", err)
	}
	return nil
}
