package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gladys-ai/gladys/pkg/models"
)

// provideFeedbackHandler handles POST /api/v1/feedback. Soft failures
// (expired trace, LLM down during extraction) keep accepted=true with
// error_message set; only validation problems are HTTP errors.
func (s *Server) provideFeedbackHandler(c *gin.Context) {
	var fb models.FeedbackEvent
	if err := c.ShouldBindJSON(&fb); err != nil {
		writeBindError(c, err)
		return
	}

	ack, err := s.orch.ProvideFeedback(c.Request.Context(), fb)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}
