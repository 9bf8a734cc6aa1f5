package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrIncompleteEnvelope = errors.New("envelope is missing id or user_id")

// NotificationEnvelope là thông điệp trên đường truyền (pub/sub, queue, cache).
// Nó là bản sao tại một thời điểm của hàng notifications, không phải nguồn sự thật cho is_read.
type NotificationEnvelope struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Message   string     `json:"message"`
	TopicID   *uuid.UUID `json:"topic_id"`
	CommentID *uuid.UUID `json:"comment_id"`
	CreatedAt time.Time  `json:"created_at"`
	IsRead    bool       `json:"is_read"`
}

func (e NotificationEnvelope) Marshal() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope %s: %w", e.ID, err)
	}
	return data, nil
}

// ParseEnvelope giải mã và kiểm tra các trường bắt buộc.
func ParseEnvelope(data []byte) (NotificationEnvelope, error) {
	var env NotificationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return NotificationEnvelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.ID == uuid.Nil || env.UserID == uuid.Nil {
		return NotificationEnvelope{}, ErrIncompleteEnvelope
	}
	return env, nil
}
