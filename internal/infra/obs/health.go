package obs

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandlers exposes endpoints for liveness and readiness checks. Ready
// gates readiness on the backing stores; OutboxDepth, when set, reports the
// undelivered event backlog alongside the status.
type HealthHandlers struct {
	Ready       func() error
	OutboxDepth func(ctx context.Context) (int64, error)
}

func (h HealthHandlers) Livez(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (h HealthHandlers) Readyz(c *gin.Context) {
	if h.Ready != nil {
		if err := h.Ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
	}
	body := gin.H{"status": "ready"}
	if h.OutboxDepth != nil {
		depth, err := h.OutboxDepth(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		body["outbox_pending"] = depth
	}
	c.JSON(http.StatusOK, body)
}
