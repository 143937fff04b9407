package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gladys-ai/gladys/pkg/services"
)

const defaultQueueListLimit = 100

// queueEventsHandler handles GET /api/v1/queue/events: a snapshot of queued
// events in drain order. ?limit= caps the result (default 100).
func (s *Server) queueEventsHandler(c *gin.Context) {
	limit := defaultQueueListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(c, services.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		limit = n
	}

	queued := s.orch.ListQueuedEvents(c.Request.Context(), limit)
	c.JSON(http.StatusOK, gin.H{"events": queued, "count": len(queued)})
}

// queueStatsHandler handles GET /api/v1/queue/stats.
func (s *Server) queueStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.QueueStats(c.Request.Context()))
}
