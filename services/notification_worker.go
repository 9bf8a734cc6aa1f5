package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/forum-notify-backend/broker"
	"github.com/vnkhanh/forum-notify-backend/models"
)

// ErrPoisonMessage: tin không parse được, giao lại cũng không sửa được.
var ErrPoisonMessage = errors.New("poison notification message")

type EnvelopeCache interface {
	Store(ctx context.Context, env models.NotificationEnvelope) error
}

type WorkerOption func(*NotificationWorker)

// WithCacheRetryBackOff đặt nhịp chờ trước khi trả tin về queue khi cache lỗi.
func WithCacheRetryBackOff(b backoff.BackOff) WorkerOption {
	return func(w *NotificationWorker) { w.retry = b }
}

// NotificationWorker đọc hàng đợi bền và ghi vào cache lịch sử,
// bất kể người nhận có đang kết nối hay không.
type NotificationWorker struct {
	cache    EnvelopeCache
	consumer *broker.Consumer
	log      zerolog.Logger
	retry    backoff.BackOff
}

func NewNotificationWorker(cache EnvelopeCache, consumer *broker.Consumer, log zerolog.Logger, opts ...WorkerOption) *NotificationWorker {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = 30 * time.Second
	retry.MaxElapsedTime = 0

	w := &NotificationWorker{
		cache:    cache,
		consumer: consumer,
		log:      log,
		retry:    retry,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run chạy đến khi ctx bị huỷ.
func (w *NotificationWorker) Run(ctx context.Context) error {
	if w.consumer == nil {
		return fmt.Errorf("notification worker has no consumer")
	}
	return w.consumer.Run(ctx, w.Process)
}

// Handle ghi envelope vào cache. Trả về ErrPoisonMessage nếu body hỏng.
func (w *NotificationWorker) Handle(ctx context.Context, body []byte) (models.NotificationEnvelope, error) {
	env, err := models.ParseEnvelope(body)
	if err != nil {
		return models.NotificationEnvelope{}, fmt.Errorf("%w: %v", ErrPoisonMessage, err)
	}
	if err := w.cache.Store(ctx, env); err != nil {
		return env, err
	}
	return env, nil
}

// Process xử lý một delivery: ack khi cache đã ghi xong, reject tin hỏng,
// và trả tin về queue (sau một khoảng chờ) khi cache không dùng được.
func (w *NotificationWorker) Process(ctx context.Context, d amqp.Delivery) {
	env, err := w.Handle(ctx, d.Body)
	switch {
	case err == nil:
		w.retry.Reset()
		if ackErr := d.Ack(false); ackErr != nil {
			w.log.Warn().Err(ackErr).Uint64("delivery_tag", d.DeliveryTag).Msg("ack failed, message will be redelivered")
			return
		}
		w.log.Debug().
			Str("user_id", env.UserID.String()).
			Str("notification_id", env.ID.String()).
			Msg("notification cached")

	case errors.Is(err, ErrPoisonMessage):
		w.log.Error().Err(err).
			Str("routing_key", d.RoutingKey).
			Bytes("body", truncate(d.Body, 256)).
			Msg("dropping malformed notification")
		if rejErr := d.Reject(false); rejErr != nil {
			w.log.Warn().Err(rejErr).Msg("reject failed")
		}

	default:
		if ctx.Err() != nil {
			// Kết nối sẽ đóng, broker tự giao lại tin chưa ack.
			return
		}
		wait := w.retry.NextBackOff()
		w.log.Warn().Err(err).
			Str("notification_id", env.ID.String()).
			Dur("requeue_in", wait).
			Msg("cache unavailable, message not acknowledged")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if nackErr := d.Nack(false, true); nackErr != nil {
			w.log.Warn().Err(nackErr).Msg("nack failed")
		}
	}
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
