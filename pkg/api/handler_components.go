package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/services"
)

// HeartbeatRequest is the body for POST /api/v1/components/:id/heartbeat.
// Both fields are optional: a bare heartbeat still proves life.
type HeartbeatRequest struct {
	State   string             `json:"state,omitempty"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
}

// CommandRequest is the body for POST /api/v1/components/:id/commands.
type CommandRequest struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// CommandResponse acknowledges a queued command.
type CommandResponse struct {
	CommandID   string `json:"command_id"`
	ComponentID string `json:"component_id"`
	Queued      bool   `json:"queued"`
}

// registerComponentHandler handles POST /api/v1/components. Registration
// rejections (missing type, bad transport mode) ride the ack with
// accepted=false.
func (s *Server) registerComponentHandler(c *gin.Context) {
	var reg models.ComponentRegistration
	if err := c.ShouldBindJSON(&reg); err != nil {
		writeBindError(c, err)
		return
	}

	ack, err := s.orch.RegisterComponent(c.Request.Context(), reg)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// listComponentsHandler handles GET /api/v1/components. ?type= filters;
// ?resolve=true additionally picks the one registration the orchestrator
// would route to (404 when none of that type exists).
func (s *Server) listComponentsHandler(c *gin.Context) {
	componentType := c.Query("type")

	if c.Query("resolve") == "true" {
		if componentType == "" {
			writeServiceError(c, services.NewValidationError("type", "type is required when resolving"))
			return
		}
		reg, err := s.orch.ResolveComponent(c.Request.Context(), componentType)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, reg)
		return
	}

	components := s.orch.ListComponents(c.Request.Context(), componentType)
	c.JSON(http.StatusOK, gin.H{"components": components, "count": len(components)})
}

// unregisterComponentHandler handles DELETE /api/v1/components/:id.
// Unknown IDs are a no-op; the delete is idempotent.
func (s *Server) unregisterComponentHandler(c *gin.Context) {
	s.orch.UnregisterComponent(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// heartbeatHandler handles POST /api/v1/components/:id/heartbeat. The ack
// carries pending commands; known=false tells the component to re-register.
// Heartbeats are never rejected for queue pressure.
func (s *Server) heartbeatHandler(c *gin.Context) {
	var req HeartbeatRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBindError(c, err)
			return
		}
	}

	ack, err := s.orch.Heartbeat(c.Request.Context(), c.Param("id"), models.ComponentState(req.State), req.Metrics)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// sendCommandHandler handles POST /api/v1/components/:id/commands: queues a
// command for delivery with the component's next heartbeat ack.
func (s *Server) sendCommandHandler(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}
	if req.Name == "" {
		writeServiceError(c, services.NewValidationError("name", "command name is required"))
		return
	}

	componentID := c.Param("id")
	cmd := models.Command{
		ID:   uuid.NewString(),
		Name: req.Name,
		Args: req.Args,
	}
	if err := s.orch.SendCommand(c.Request.Context(), componentID, cmd); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, CommandResponse{
		CommandID:   cmd.ID,
		ComponentID: componentID,
		Queued:      true,
	})
}
