package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// UserChannel là tên kênh pub/sub của một người nhận.
func UserChannel(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

// Subscription là một đăng ký đang mở trên kênh của một user.
// Messages đóng khi đăng ký kết thúc.
type Subscription interface {
	Messages() <-chan []byte
	Close() error
}

// Broadcaster là kênh phát ephemeral: không lưu, không ack, không phát lại.
type Broadcaster interface {
	Publish(ctx context.Context, userID uuid.UUID, payload []byte) error
	// Subscribe chỉ trả về sau khi server đã xác nhận đăng ký.
	Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error)
}

type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

// Publish không chờ subscriber; không ai nghe thì tin bị bỏ.
func (b *RedisBroadcaster) Publish(ctx context.Context, userID uuid.UUID, payload []byte) error {
	if err := b.rdb.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", UserChannel(userID), err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	ps := b.rdb.Subscribe(ctx, UserChannel(userID))
	// Chờ xác nhận subscribe để tin publish sau thời điểm này chắc chắn tới.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", UserChannel(userID), err)
	}

	s := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go s.pump()
	return s, nil
}

type redisSubscription struct {
	ps        *redis.PubSub
	out       chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.ps.Channel() {
		select {
		case s.out <- []byte(msg.Payload):
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
