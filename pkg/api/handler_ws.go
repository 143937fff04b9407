package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/gladys-ai/gladys/pkg/events"
	"github.com/gladys-ai/gladys/pkg/services"
)

// wsResponsesHandler handles GET /ws/responses: the response subscription
// stream. Query parameters shape the subscription:
//
//	include_immediate  deliver llm_immediate/heuristic_fast responses (default true)
//	sources            comma-separated event source whitelist
//	last_event_id      replay persisted responses after this id (reconnect catchup)
func (s *Server) wsResponsesHandler(c *gin.Context) {
	if s.connManager == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "event streaming not available"})
		return
	}

	filter := events.DefaultSubscriptionFilter()
	if v := c.Query("include_immediate"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			writeServiceError(c, services.NewValidationError("include_immediate", "must be a boolean"))
			return
		}
		filter.IncludeImmediate = include
	}
	if v := c.Query("sources"); v != "" {
		for _, src := range strings.Split(v, ",") {
			if src = strings.TrimSpace(src); src != "" {
				filter.Sources = append(filter.Sources, src)
			}
		}
	}
	var lastEventID *int64
	if v := c.Query("last_event_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeServiceError(c, services.NewValidationError("last_event_id", "must be an integer"))
			return
		}
		lastEventID = &id
	}

	conn, err := websocket.Accept(c.Writer, c.Request, s.acceptOptions())
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "path", c.Request.URL.Path, "error", err)
		return
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request.Context(), conn, events.ConnectionOptions{
		Channels:    []string{events.ResponsesChannel},
		Filter:      filter,
		LastEventID: lastEventID,
	})
}
