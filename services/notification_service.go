package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vnkhanh/forum-notify-backend/models"
)

var ErrSelfNotification = errors.New("actor is the recipient")

type EnvelopePublisher interface {
	Publish(ctx context.Context, env models.NotificationEnvelope) error
}

type NotifyInput struct {
	RecipientID uuid.UUID
	// ActorID là người gây ra sự kiện. Không thông báo khi actor chính là người nhận.
	ActorID   uuid.UUID
	Message   string
	TopicID   *uuid.UUID
	CommentID *uuid.UUID
}

// NotificationService là điểm vào của logic nghiệp vụ: ghi hàng trước, publish sau.
type NotificationService struct {
	store     *NotificationStore
	publisher EnvelopePublisher
	recent    *RecentCache
	log       zerolog.Logger
}

func NewNotificationService(store *NotificationStore, publisher EnvelopePublisher, recent *RecentCache, log zerolog.Logger) *NotificationService {
	return &NotificationService{store: store, publisher: publisher, recent: recent, log: log}
}

// Notify tạo thông báo rồi phát nó. Lỗi phát chỉ được log: hàng đã tạo vẫn được coi là thành công.
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	if in.ActorID != uuid.Nil && in.ActorID == in.RecipientID {
		return nil, ErrSelfNotification
	}
	if in.Message == "" {
		return nil, fmt.Errorf("notify %s: empty message", in.RecipientID)
	}

	n, err := s.store.Create(ctx, CreateNotificationInput{
		UserID:    in.RecipientID,
		Message:   in.Message,
		TopicID:   in.TopicID,
		CommentID: in.CommentID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, n.Envelope()); err != nil {
		s.log.Warn().Err(err).
			Str("notification_id", n.ID.String()).
			Msg("notification stored but delivery degraded")
	}
	return n, nil
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.Notification, error) {
	return s.store.List(ctx, userID, skip, limit)
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.UnreadCount(ctx, userID)
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	return s.store.MarkRead(ctx, userID, id)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *NotificationService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.store.Delete(ctx, userID, id)
}

// Recent đọc lịch sử gần đây từ cache. is_read trong kết quả là bản chụp,
// không phải trạng thái thật; client cần lấy is_read từ List.
func (s *NotificationService) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.NotificationEnvelope, error) {
	return s.recent.Recent(ctx, userID, limit)
}

func (s *NotificationService) PingStore(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *NotificationService) PingCache(ctx context.Context) error {
	return s.recent.Ping(ctx)
}
