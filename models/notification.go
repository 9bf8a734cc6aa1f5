package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Notification struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"` // người nhận
	Message string    `gorm:"type:text;not null" json:"message"`
	IsRead  bool      `gorm:"default:false;index" json:"is_read"`

	TopicID   *uuid.UUID `gorm:"type:uuid" json:"topic_id,omitempty"`
	CommentID *uuid.UUID `gorm:"type:uuid" json:"comment_id,omitempty"`

	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
}

// BeforeCreate gán ID trước khi insert, để ID luôn có trước khi publish.
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// Envelope trả về bản chụp bất biến của hàng, dùng để gửi qua các kênh.
func (n *Notification) Envelope() NotificationEnvelope {
	env := NotificationEnvelope{
		ID:        n.ID,
		UserID:    n.UserID,
		Message:   n.Message,
		CreatedAt: n.CreatedAt.UTC(),
		IsRead:    n.IsRead,
	}
	if n.TopicID != nil {
		id := *n.TopicID
		env.TopicID = &id
	}
	if n.CommentID != nil {
		id := *n.CommentID
		env.CommentID = &id
	}
	return env
}
