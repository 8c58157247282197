package handler

import (
	"errors"
	"net/http"
	"strconv"

	"office_parking/internal/api/middleware"
	"office_parking/internal/domain"
	"office_parking/internal/repository"
	"office_parking/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifyService *service.NotifyService
}

func NewNotificationHandler(ns *service.NotifyService) *NotificationHandler {
	return &NotificationHandler{notifyService: ns}
}

// GET /notifications?limit=N lists the caller's recent notifications, newest
// first.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer between 1 and 100"})
			return
		}
		limit = parsed
	}

	notifications, err := h.notifyService.ListForUser(c.Request.Context(), middleware.CallerID(c), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list notifications", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications, "count": len(notifications)})
}

// POST /push-tokens registers (or refreshes) a device token for the caller.
func (h *NotificationHandler) RegisterPushToken(c *gin.Context) {
	var dto domain.RegisterPushTokenDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	token, err := h.notifyService.RegisterPushToken(c.Request.Context(), middleware.CallerID(c), dto)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not register push token", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, token)
}

// DELETE /push-tokens/:token
func (h *NotificationHandler) UnregisterPushToken(c *gin.Context) {
	token := c.Param("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.notifyService.UnregisterPushToken(c.Request.Context(), middleware.CallerID(c), token); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "push token not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not unregister push token", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "push token removed"})
}
