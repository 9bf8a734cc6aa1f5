package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func TestRetentionJobPrunesOnlyOldReadRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	userID := uuid.New()

	read, err := store.Create(ctx, CreateNotificationInput{UserID: userID, Message: "read"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	unread, err := store.Create(ctx, CreateNotificationInput{UserID: userID, Message: "unread"})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if _, err := store.MarkRead(ctx, userID, read.ID); err != nil {
		t.Fatalf("MarkRead() error: %v", err)
	}

	job := NewRetentionJob(store, 24*time.Hour, 0, zerolog.Nop())

	// Vừa đọc xong: chưa đủ tuổi.
	if n, err := job.RunOnce(ctx); err != nil || n != 0 {
		t.Fatalf("RunOnce() = %d, %v; want 0 deleted", n, err)
	}

	job.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err := job.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce() error: %v", err)
	}
	if n != 1 {
		t.Errorf("RunOnce() deleted %d, want 1", n)
	}
	if _, err := store.Get(ctx, userID, read.ID); err != ErrNotificationNotFound {
		t.Errorf("old read row still present: %v", err)
	}
	if _, err := store.Get(ctx, userID, unread.ID); err != nil {
		t.Errorf("unread row must be kept: %v", err)
	}
}

func TestRetentionJobRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	job := NewRetentionJob(newTestStore(t), time.Hour, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- job.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
