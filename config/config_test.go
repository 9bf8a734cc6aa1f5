package config

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

func TestFromViperDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := FromViper(viper.New())
	if err != nil {
		t.Fatalf("FromViper() error: %v", err)
	}
	if cfg.DBDriver == "" || cfg.JWTSecret == "" || cfg.RetentionInterval <= 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestFromViperOverrides(t *testing.T) {
	t.Parallel()
	v := viper.New()
	v.Set("PORT", "9090")
	v.Set("DB_DRIVER", "SQLite")
	v.Set("JWT_SECRET", "s3cret")
	v.Set("NOTIFICATION_RETENTION", "48h")
	v.Set("WORKER_ENABLED", "false")
	v.Set("REDIS_DB", "3")
	v.Set("CORS_ALLOW_ORIGINS", "https://a.example, https://b.example,,")

	cfg, err := FromViper(v)
	if err != nil {
		t.Fatalf("FromViper() error: %v", err)
	}
	if cfg.Port != "9090" || cfg.DBDriver != "sqlite" || cfg.JWTSecret != "s3cret" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RetentionMaxAge != 48*time.Hour {
		t.Errorf("RetentionMaxAge = %v, want 48h", cfg.RetentionMaxAge)
	}
	if cfg.WorkerEnabled {
		t.Error("WorkerEnabled = true, want false")
	}
	if cfg.RedisDB != 3 {
		t.Errorf("RedisDB = %d, want 3", cfg.RedisDB)
	}
	if want := []string{"https://a.example", "https://b.example"}; !reflect.DeepEqual(cfg.CORSAllowOrigins, want) {
		t.Errorf("CORSAllowOrigins = %v, want %v", cfg.CORSAllowOrigins, want)
	}
}

func TestFromViperInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown driver", key: "DB_DRIVER", val: "mysql"},
		{name: "bad retention interval", key: "NOTIFICATION_RETENTION_INTERVAL", val: "forever"},
		{name: "empty secret", key: "JWT_SECRET", val: ""},
		{name: "bad retention", key: "NOTIFICATION_RETENTION", val: "a month"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := viper.New()
			v.Set(tt.key, tt.val)
			if _, err := FromViper(v); err == nil {
				t.Errorf("FromViper() with %s=%q should fail", tt.key, tt.val)
			}
		})
	}
}

func TestOpenDBSQLite(t *testing.T) {
	t.Parallel()
	db, err := OpenDB(&Config{DBDriver: "sqlite", DBSQLitePath: filepath.Join(t.TempDir(), "cfg.db")})
	if err != nil {
		t.Fatalf("OpenDB() error: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error: %v", err)
	}
	defer sqlDB.Close()

	if !db.Migrator().HasTable("notifications") {
		t.Error("notifications table not migrated")
	}
}

func TestNewRedis(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	rdb, err := NewRedis(context.Background(), &Config{RedisAddr: addr}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedis() error: %v", err)
	}
	rdb.Close()

	mr.Close()
	if _, err := NewRedis(context.Background(), &Config{RedisAddr: addr}, zerolog.Nop()); err == nil {
		t.Error("NewRedis() against a stopped server should fail")
	}
}

func TestRedisLoggerWritesThroughZerolog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := redisLogger{log: zerolog.New(&buf)}

	l.Printf(context.Background(), "redis: discarding bad PubSub connection: %v", "EOF")

	line := buf.String()
	for _, want := range []string{`"level":"warn"`, `discarding bad PubSub connection: EOF`} {
		if !strings.Contains(line, want) {
			t.Errorf("log line %s missing %s", line, want)
		}
	}
}
