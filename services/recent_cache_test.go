package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/vnkhanh/forum-notify-backend/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func testEnvelope(userID uuid.UUID, msg string) models.NotificationEnvelope {
	return models.NotificationEnvelope{
		ID:        uuid.New(),
		UserID:    userID,
		Message:   msg,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

func TestRecentCacheStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	userID := uuid.New()
	env := testEnvelope(userID, "hello")
	if err := cache.Store(ctx, env); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	snapKey := "user:" + userID.String() + ":notification:" + env.ID.String()
	if !mr.Exists(snapKey) {
		t.Fatalf("snapshot key %s not written", snapKey)
	}
	if ttl := mr.TTL(snapKey); ttl != 24*time.Hour {
		t.Errorf("snapshot TTL = %v, want 24h", ttl)
	}
	list, err := mr.List("user:" + userID.String() + ":notifications")
	if err != nil {
		t.Fatalf("read list: %v", err)
	}
	if len(list) != 1 || list[0] != env.ID.String() {
		t.Errorf("list = %v, want [%s]", list, env.ID)
	}

	got, ok, err := cache.Get(ctx, userID, env.ID)
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, want hit", ok, err)
	}
	if got.Message != "hello" || !got.CreatedAt.Equal(env.CreatedAt) {
		t.Errorf("Get() = %+v, want %+v", got, env)
	}
}

func TestRecentCacheCapsAt100(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	userID := uuid.New()
	var ids []uuid.UUID
	for i := 0; i < 150; i++ {
		env := testEnvelope(userID, "n")
		ids = append(ids, env.ID)
		if err := cache.Store(ctx, env); err != nil {
			t.Fatalf("Store(%d) error: %v", i, err)
		}
	}

	got, err := cache.IDs(ctx, userID, 0)
	if err != nil {
		t.Fatalf("IDs() error: %v", err)
	}
	if len(got) != RecentLimit {
		t.Fatalf("len(IDs()) = %d, want %d", len(got), RecentLimit)
	}
	for i, id := range got {
		want := ids[149-i]
		if id != want {
			t.Fatalf("IDs()[%d] = %s, want %s", i, id, want)
		}
	}
}

func TestRecentCacheDuplicateIsMovedToHead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	userID := uuid.New()
	first := testEnvelope(userID, "first")
	second := testEnvelope(userID, "second")
	for _, env := range []models.NotificationEnvelope{first, second, first, first} {
		if err := cache.Store(ctx, env); err != nil {
			t.Fatalf("Store() error: %v", err)
		}
	}

	got, err := cache.IDs(ctx, userID, 10)
	if err != nil {
		t.Fatalf("IDs() error: %v", err)
	}
	if len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Errorf("IDs() = %v, want [%s %s]", got, first.ID, second.ID)
	}
}

func TestRecentCacheExpiredSnapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	userID := uuid.New()
	old := testEnvelope(userID, "old")
	if err := cache.Store(ctx, old); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	mr.FastForward(25 * time.Hour)
	fresh := testEnvelope(userID, "fresh")
	if err := cache.Store(ctx, fresh); err != nil {
		t.Fatalf("Store() error: %v", err)
	}

	if _, ok, err := cache.Get(ctx, userID, old.ID); err != nil || ok {
		t.Errorf("Get(expired) = %v, %v, want miss", ok, err)
	}

	ids, _ := cache.IDs(ctx, userID, 0)
	if len(ids) != 2 {
		t.Errorf("IDs() len = %d, want 2 (list outlives snapshots)", len(ids))
	}

	recent, err := cache.Recent(ctx, userID, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != fresh.ID {
		t.Errorf("Recent() = %+v, want only %s", recent, fresh.ID)
	}
}

func TestRecentCacheConcurrentStores(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	_, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	userID := uuid.New()
	envs := []models.NotificationEnvelope{testEnvelope(userID, "a"), testEnvelope(userID, "b")}

	var wg sync.WaitGroup
	for _, env := range envs {
		wg.Add(1)
		go func(env models.NotificationEnvelope) {
			defer wg.Done()
			if err := cache.Store(ctx, env); err != nil {
				t.Errorf("Store() error: %v", err)
			}
		}(env)
	}
	wg.Wait()

	recent, err := cache.Recent(ctx, userID, 0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Recent() len = %d, want 2", len(recent))
	}
}

func TestRecentCacheUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	cache := NewRecentCache(rdb)

	mr.Close()
	if err := cache.Store(ctx, testEnvelope(uuid.New(), "lost")); err == nil {
		t.Error("Store() with redis down should fail")
	}
}
