package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vnkhanh/forum-notify-backend/middleware"
	"github.com/vnkhanh/forum-notify-backend/services"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type NotificationController struct {
	svc *services.NotificationService
}

func NewNotificationController(svc *services.NotificationService) *NotificationController {
	return &NotificationController{svc: svc}
}

// currentUser lấy user id do AuthMiddleware đặt; thiếu thì trả 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
	}
	return userID, ok
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key)
	}
	return n, nil
}

// limitParam: thiếu hoặc 0 thì dùng defaultPageLimit, lớn hơn maxPageLimit thì bị cắt.
func limitParam(c *gin.Context) (int, error) {
	limit, err := queryInt(c, "limit", defaultPageLimit)
	if err != nil {
		return 0, err
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return limit, nil
}

func pageParams(c *gin.Context) (skip, limit int, ok bool) {
	skip, err := queryInt(c, "skip", 0)
	if err == nil {
		limit, err = limitParam(c)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return 0, 0, false
	}
	return skip, limit, true
}

// Danh sách thông báo
// GET /api/notifications?skip=0&limit=20
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	skip, limit, ok := pageParams(c)
	if !ok {
		return
	}

	list, err := nc.svc.List(c.Request.Context(), userID, skip, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}
	c.JSON(http.StatusOK, list)
}

// Lịch sử gần đây từ cache; chỉ gồm các thông báo đã qua worker.
// GET /api/notifications/recent?limit=20
func (nc *NotificationController) GetRecentNotifications(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	limit, err := limitParam(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	recent, err := nc.svc.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "recent notifications unavailable"})
		return
	}
	c.JSON(http.StatusOK, recent)
}

// Đếm số thông báo chưa đọc
func (nc *NotificationController) GetUnreadCount(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	count, err := nc.svc.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count notifications"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// Đánh dấu đã đọc
func (nc *NotificationController) MarkNotificationAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	n, err := nc.svc.MarkRead(c.Request.Context(), userID, notificationID)
	if errors.Is(err, services.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update notification"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (nc *NotificationController) MarkAllAsRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	updated, err := nc.svc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark all read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// Xóa một thông báo cụ thể
func (nc *NotificationController) DeleteNotification(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	notificationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	err = nc.svc.Delete(c.Request.Context(), userID, notificationID)
	if errors.Is(err, services.ErrNotificationNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete notification"})
		return
	}
	c.Status(http.StatusNoContent)
}

type CreateNotificationRequest struct {
	RecipientID uuid.UUID  `json:"recipient_id" binding:"required"`
	ActorID     uuid.UUID  `json:"actor_id"`
	Message     string     `json:"message" binding:"required"`
	TopicID     *uuid.UUID `json:"topic_id"`
	CommentID   *uuid.UUID `json:"comment_id"`
}

// CreateNotification là lối vào nội bộ cho các service khác (vd. khi có bình luận mới).
// POST /api/internal/notifications
func (nc *NotificationController) CreateNotification(c *gin.Context) {
	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.RecipientID == uuid.Nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}

	n, err := nc.svc.Notify(c.Request.Context(), services.NotifyInput{
		RecipientID: req.RecipientID,
		ActorID:     req.ActorID,
		Message:     req.Message,
		TopicID:     req.TopicID,
		CommentID:   req.CommentID,
	})
	if errors.Is(err, services.ErrSelfNotification) {
		// Người dùng tự bình luận trên topic của mình: không có gì để gửi.
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create notification"})
		return
	}
	c.JSON(http.StatusCreated, n)
}
