package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const DefaultRetentionInterval = 6 * time.Hour

// RetentionJob định kỳ xoá thông báo đã đọc quá lâu khỏi record store.
type RetentionJob struct {
	store    *NotificationStore
	maxAge   time.Duration
	interval time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

func NewRetentionJob(store *NotificationStore, maxAge, interval time.Duration, log zerolog.Logger) *RetentionJob {
	if interval <= 0 {
		interval = DefaultRetentionInterval
	}
	return &RetentionJob{store: store, maxAge: maxAge, interval: interval, log: log, now: time.Now}
}

// RunOnce chạy một lượt dọn dẹp và trả về số hàng đã xoá.
func (j *RetentionJob) RunOnce(ctx context.Context) (int64, error) {
	n, err := j.store.PruneRead(ctx, j.now().Add(-j.maxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.Info().Int64("deleted", n).Dur("max_age", j.maxAge).Msg("pruned read notifications")
	}
	return n, nil
}

// Run chạy ngay lần đầu rồi lặp lại theo interval cho tới khi ctx bị huỷ.
func (j *RetentionJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.log.Warn().Err(err).Msg("retention sweep failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
