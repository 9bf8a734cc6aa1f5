package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/forum-notify-backend/ws"
)

// Pinger là một phụ thuộc có thể kiểm tra sống/chết.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthController struct {
	db    Pinger
	redis Pinger
	hub   *ws.Hub
}

func NewHealthController(db, redis Pinger, hub *ws.Hub) *HealthController {
	return &HealthController{db: db, redis: redis, hub: hub}
}

func (h *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	// Mặc định trạng thái OK
	status := http.StatusOK
	response := gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"db":        "ok",
		"redis":     "ok",
		"websocket": gin.H{
			"enabled": true,
			"stats":   h.hub.GetStats(),
		},
	}

	if err := h.db.Ping(ctx); err != nil {
		response["db"] = "error: " + err.Error()
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}
	// Redis chết thì không còn realtime lẫn lịch sử gần đây.
	if err := h.redis.Ping(ctx); err != nil {
		response["redis"] = "error: " + err.Error()
		response["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, response)
}
