package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnkhanh/forum-notify-backend/models"
)

const (
	RecentLimit       = 100
	RecentSnapshotTTL = 24 * time.Hour
)

func recentListKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:notifications", userID)
}

func recentSnapshotKey(userID, id uuid.UUID) string {
	return fmt.Sprintf("user:%s:notification:%s", userID, id)
}

// RecentCache giữ tối đa RecentLimit id gần nhất cho mỗi user, mới nhất trước,
// cùng bản chụp envelope có TTL. Bản chụp có thể hết hạn trước khi id rời danh sách.
type RecentCache struct {
	rdb *redis.Client
	ttl time.Duration
	max int64
}

func NewRecentCache(rdb *redis.Client) *RecentCache {
	return &RecentCache{rdb: rdb, ttl: RecentSnapshotTTL, max: RecentLimit}
}

// Store ghi bản chụp rồi đưa id lên đầu danh sách. Một id chỉ xuất hiện một lần:
// ghi lại cùng id sẽ chuyển nó lên đầu, nên giao lại cùng tin là idempotent.
func (c *RecentCache) Store(ctx context.Context, env models.NotificationEnvelope) error {
	payload, err := env.Marshal()
	if err != nil {
		return err
	}

	listKey := recentListKey(env.UserID)
	id := env.ID.String()

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recentSnapshotKey(env.UserID, env.ID), payload, c.ttl)
		pipe.LRem(ctx, listKey, 0, id)
		pipe.LPush(ctx, listKey, id)
		pipe.LTrim(ctx, listKey, 0, c.max-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache notification %s for %s: %w", env.ID, env.UserID, err)
	}
	return nil
}

// IDs trả về tối đa limit id, mới nhất trước.
func (c *RecentCache) IDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 || int64(limit) > c.max {
		limit = int(c.max)
	}
	raw, err := c.rdb.LRange(ctx, recentListKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read recent ids for %s: %w", userID, err)
	}
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Get trả về (envelope, false, nil) khi bản chụp đã hết hạn.
func (c *RecentCache) Get(ctx context.Context, userID, id uuid.UUID) (models.NotificationEnvelope, bool, error) {
	data, err := c.rdb.Get(ctx, recentSnapshotKey(userID, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.NotificationEnvelope{}, false, nil
	}
	if err != nil {
		return models.NotificationEnvelope{}, false, fmt.Errorf("read snapshot %s: %w", id, err)
	}
	env, err := models.ParseEnvelope(data)
	if err != nil {
		return models.NotificationEnvelope{}, false, err
	}
	return env, true, nil
}

// Recent trả về các envelope còn trong cache theo thứ tự mới nhất trước,
// bỏ qua id có bản chụp đã hết hạn.
func (c *RecentCache) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]models.NotificationEnvelope, error) {
	ids, err := c.IDs(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []models.NotificationEnvelope{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = recentSnapshotKey(userID, id)
	}
	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshots for %s: %w", userID, err)
	}

	out := make([]models.NotificationEnvelope, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		env, err := models.ParseEnvelope([]byte(s))
		if err != nil {
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

func (c *RecentCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
