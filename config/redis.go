package config

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisLogger đưa log nội bộ của go-redis (reconnect, pubsub hỏng…) về zerolog.
type redisLogger struct {
	log zerolog.Logger
}

func (l redisLogger) Printf(_ context.Context, format string, v ...interface{}) {
	l.log.Warn().Msgf(format, v...)
}

// NewRedis tạo client dùng chung cho pub/sub và cache lịch sử.
// Logger của go-redis là biến toàn cục, nên lần gọi sau cùng quyết định nơi ghi log.
func NewRedis(ctx context.Context, c *Config, log zerolog.Logger) (*redis.Client, error) {
	redis.SetLogger(redisLogger{log: log})

	rdb := redis.NewClient(&redis.Options{
		Addr:     c.RedisAddr,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", c.RedisAddr, err)
	}
	return rdb, nil
}
