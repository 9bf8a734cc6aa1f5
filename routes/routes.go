package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/vnkhanh/forum-notify-backend/controllers"
	"github.com/vnkhanh/forum-notify-backend/middleware"
	"github.com/vnkhanh/forum-notify-backend/models"
	"github.com/vnkhanh/forum-notify-backend/ws"
)

type Deps struct {
	JWTSecret     string
	Notifications *controllers.NotificationController
	Health        *controllers.HealthController
	Gateway       *ws.Gateway
}

func SetupRouter(r *gin.Engine, d Deps) *gin.Engine {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})
	r.GET("/health", d.Health.HealthCheck)

	api := r.Group("/api")

	// Websocket tự xác thực qua ?token= vì trình duyệt không gửi được header khi upgrade.
	api.GET("/notifications/ws/:user_id", d.Gateway.HandleUserWebSocket)

	notifications := api.Group("/notifications")
	{
		notifications.Use(middleware.AuthMiddleware(d.JWTSecret))

		notifications.GET("", d.Notifications.GetNotifications)
		notifications.GET("/recent", d.Notifications.GetRecentNotifications)
		notifications.GET("/unread-count", d.Notifications.GetUnreadCount)
		// PUT là method client web dùng; PATCH giữ làm alias.
		notifications.PUT("/read-all", d.Notifications.MarkAllAsRead)
		notifications.PATCH("/read-all", d.Notifications.MarkAllAsRead)
		notifications.PUT("/:id/read", d.Notifications.MarkNotificationAsRead)
		notifications.PATCH("/:id/read", d.Notifications.MarkNotificationAsRead)
		notifications.DELETE("/:id", d.Notifications.DeleteNotification)
	}

	internal := api.Group("/internal")
	{
		internal.Use(middleware.AuthMiddleware(d.JWTSecret), middleware.RequireRoles(string(models.RoleAdmin), string(models.RoleService)))

		internal.POST("/notifications", d.Notifications.CreateNotification)
	}

	return r
}
