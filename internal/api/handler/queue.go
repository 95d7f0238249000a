package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/linkweaver/internal/queue"
)

// QueueInspector reports queue depth.
type QueueInspector interface {
	Stats(ctx context.Context) (queue.Stats, error)
}

// QueueHandler exposes queue introspection.
type QueueHandler struct {
	queue QueueInspector
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(q QueueInspector) *QueueHandler {
	return &QueueHandler{queue: q}
}

// Stats handles GET /queue/stats.
func (h *QueueHandler) Stats(c *gin.Context) {
	stats, err := h.queue.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
