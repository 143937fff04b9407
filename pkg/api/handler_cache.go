package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// cacheStatsHandler handles GET /api/v1/cache/stats.
func (s *Server) cacheStatsHandler(c *gin.Context) {
	if s.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "salience gateway not available"})
		return
	}
	stats := s.gateway.CacheStats()
	c.JSON(http.StatusOK, gin.H{
		"cache":          stats,
		"uptime_seconds": int64(s.gateway.Uptime().Seconds()),
	})
}

// cacheHeuristicsHandler handles GET /api/v1/cache/heuristics: the cache's
// current contents with per-entry hit counts.
func (s *Server) cacheHeuristicsHandler(c *gin.Context) {
	if s.gateway == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "salience gateway not available"})
		return
	}
	cached := s.gateway.ListCached()
	c.JSON(http.StatusOK, gin.H{"heuristics": cached, "count": len(cached)})
}
