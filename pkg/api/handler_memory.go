package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/services"
)

const defaultFireListLimit = 50

// listHeuristicsHandler handles GET /api/v1/heuristics. Filters:
// ?min_confidence=, ?origin=, ?include_frozen=, ?limit=.
func (s *Server) listHeuristicsHandler(c *gin.Context) {
	var f memory.HeuristicFilter

	if v := c.Query("min_confidence"); v != "" {
		mc, err := strconv.ParseFloat(v, 64)
		if err != nil || mc < 0 || mc > 1 {
			writeServiceError(c, services.NewValidationError("min_confidence", "must be a number in [0, 1]"))
			return
		}
		f.MinConfidence = mc
	}
	if v := c.Query("origin"); v != "" {
		origin := models.HeuristicOrigin(v)
		if !origin.IsValid() {
			writeServiceError(c, services.NewValidationError("origin", "unknown heuristic origin"))
			return
		}
		f.Origin = origin
	}
	if v := c.Query("include_frozen"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeServiceError(c, services.NewValidationError("include_frozen", "must be a boolean"))
			return
		}
		f.IncludeFrozen = include
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(c, services.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	heuristics, err := s.store.ListHeuristics(c.Request.Context(), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"heuristics": heuristics, "count": len(heuristics)})
}

// getHeuristicHandler handles GET /api/v1/heuristics/:id.
func (s *Server) getHeuristicHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeServiceError(c, services.NewValidationError("id", "must be a UUID"))
		return
	}

	h, err := s.store.GetHeuristic(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

// listFiresHandler handles GET /api/v1/fires: the heuristic flight
// recorder. Filters: ?heuristic_id=, ?outcome=, ?limit=, ?offset=.
func (s *Server) listFiresHandler(c *gin.Context) {
	f := memory.FireFilter{Limit: defaultFireListLimit}

	if v := c.Query("heuristic_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			writeServiceError(c, services.NewValidationError("heuristic_id", "must be a UUID"))
			return
		}
		f.HeuristicID = id
	}
	if v := c.Query("outcome"); v != "" {
		outcome := models.FireOutcome(v)
		if !outcome.IsValid() {
			writeServiceError(c, services.NewValidationError("outcome", "must be unknown, success, or fail"))
			return
		}
		f.Outcome = outcome
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(c, services.NewValidationError("limit", "must be a non-negative integer"))
			return
		}
		f.Limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeServiceError(c, services.NewValidationError("offset", "must be a non-negative integer"))
			return
		}
		f.Offset = n
	}

	fires, total, err := s.store.ListFires(c.Request.Context(), f)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fires": fires, "count": len(fires), "total": total})
}
