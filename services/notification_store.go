package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vnkhanh/forum-notify-backend/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

type CreateNotificationInput struct {
	UserID    uuid.UUID
	Message   string
	TopicID   *uuid.UUID
	CommentID *uuid.UUID
}

// NotificationStore là nguồn sự thật của bảng notifications, kể cả is_read.
type NotificationStore struct {
	db *gorm.DB
}

func NewNotificationStore(db *gorm.DB) *NotificationStore {
	return &NotificationStore{db: db}
}

// Create ghi hàng mới và trả về khi transaction đã commit.
func (s *NotificationStore) Create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if in.UserID == uuid.Nil {
		return nil, fmt.Errorf("create notification: empty user id")
	}
	n := &models.Notification{
		UserID:    in.UserID,
		Message:   in.Message,
		TopicID:   in.TopicID,
		CommentID: in.CommentID,
		IsRead:    false,
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("create notification for %s: %w", in.UserID, err)
	}
	return n, nil
}

func (s *NotificationStore) Get(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).First(&n, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification %s: %w", id, err)
	}
	return &n, nil
}

// List trả về thông báo mới nhất trước.
func (s *NotificationStore) List(ctx context.Context, userID uuid.UUID, skip, limit int) ([]models.Notification, error) {
	list := make([]models.Notification, 0, limit)
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", userID, err)
	}
	return list, nil
}

func (s *NotificationStore) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count unread for %s: %w", userID, err)
	}
	return count, nil
}

// MarkRead đánh dấu đã đọc một thông báo của userID.
func (s *NotificationStore) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]interface{}{"is_read": true, "read_at": &now})
	if res.Error != nil {
		return nil, fmt.Errorf("mark notification %s read: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotificationNotFound
	}
	return s.Get(ctx, userID, id)
}

// MarkAllRead trả về số hàng đã cập nhật.
func (s *NotificationStore) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Updates(map[string]interface{}{"is_read": true, "read_at": &now})
	if res.Error != nil {
		return 0, fmt.Errorf("mark all read for %s: %w", userID, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *NotificationStore) Delete(ctx context.Context, userID, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&models.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Ping dùng cho health check.
func (s *NotificationStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// PruneRead xoá các thông báo đã đọc trước mốc before. Thông báo chưa đọc luôn được giữ.
func (s *NotificationStore) PruneRead(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("is_read = ? AND read_at < ?", true, before.UTC()).
		Delete(&models.Notification{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune read notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}
