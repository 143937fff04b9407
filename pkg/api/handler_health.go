package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gladys-ai/gladys/pkg/database"
	"github.com/gladys-ai/gladys/pkg/decision"
	"github.com/gladys-ai/gladys/pkg/orchestrator"
	"github.com/gladys-ai/gladys/pkg/salience"
	"github.com/gladys-ai/gladys/pkg/version"
)

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status         string                 `json:"status"`
	Version        string                 `json:"version"`
	DBConnected    bool                   `json:"db_connected"`
	Database       *database.HealthStatus `json:"database,omitempty"`
	EmbeddingModel string                 `json:"embedding_model"`
	LLMAvailable   bool                   `json:"llm_available"`
	QueueSize      int                    `json:"queue_size"`
	Orchestrator   orchestrator.Health    `json:"orchestrator"`
	Cache          *salience.CacheStats   `json:"cache,omitempty"`
	Decision       *decision.Stats        `json:"decision,omitempty"`
}

// healthHandler handles GET /health. Database connectivity decides
// unhealthy (503); a missing LLM only degrades, the heuristic fast path
// still answers without one.
func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:         healthStatusHealthy,
		Version:        version.Full(),
		EmbeddingModel: s.embeddingModelName(),
		Orchestrator:   s.orch.Health(),
	}
	resp.QueueSize = resp.Orchestrator.QueueSize

	if s.pool != nil {
		dbHealth, err := database.Health(reqCtx, s.pool)
		resp.Database = dbHealth
		resp.DBConnected = err == nil
	}
	if !resp.DBConnected {
		resp.Status = healthStatusUnhealthy
	}

	if s.executive != nil {
		stats := s.executive.Stats(reqCtx)
		resp.Decision = &stats
		resp.LLMAvailable = stats.LLMAvailable
	}
	if !resp.LLMAvailable && resp.Status == healthStatusHealthy {
		resp.Status = healthStatusDegraded
	}

	if s.gateway != nil {
		stats := s.gateway.CacheStats()
		resp.Cache = &stats
	}

	httpStatus := http.StatusOK
	if resp.Status == healthStatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, resp)
}

func (s *Server) embeddingModelName() string {
	mem := s.cfg.Memory
	if mem.EmbeddingModel != "" {
		return mem.EmbeddingModel
	}
	return fmt.Sprintf("%s-%d", mem.EmbeddingProvider, mem.EmbeddingDimensions)
}
