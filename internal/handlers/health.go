package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/codecollab/backend/internal/services"
	"github.com/huangang/codecollab/backend/internal/store"
)

// HealthHandler provides enhanced health check endpoints.
type HealthHandler struct {
	store     store.Store
	auth      *services.AuthService
	taskQueue services.TaskQueue
	hub       *services.Hub
}

func NewHealthHandler(s store.Store, auth *services.AuthService, taskQueue services.TaskQueue, hub *services.Hub) *HealthHandler {
	return &HealthHandler{
		store:     s,
		auth:      auth,
		taskQueue: taskQueue,
		hub:       hub,
	}
}

// CheckHealth returns the health status of all subsystems.
// GET /health
func (h *HealthHandler) CheckHealth(c *gin.Context) {
	overall := "healthy"
	status := http.StatusOK

	// Database check
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	dbStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		dbStatus = "error: " + err.Error()
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	queueMode := "sync"
	if h.taskQueue != nil && h.taskQueue.IsAsync() {
		queueMode = "async (Redis)"
	}

	c.JSON(status, gin.H{
		"status":  overall,
		"service": "codecollab",
		"components": gin.H{
			"database":        dbStatus,
			"database_driver": h.store.Driver(),
			"blacklist_mode":  h.auth.BlacklistMode(),
			"queue_mode":      queueMode,
			"rooms":           h.hub.RoomCount(),
			"connections":     h.hub.ClientCount(),
		},
	})
}
