package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/gladys-ai/gladys/pkg/models"
)

const streamWriteTimeout = 5 * time.Second

// publishEventHandler handles POST /api/v1/events. Business rejections
// (queue full) ride the ack with accepted=false; only malformed bodies and
// validation failures are HTTP errors.
func (s *Server) publishEventHandler(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeBindError(c, err)
		return
	}

	ack, err := s.orch.PublishEvent(c.Request.Context(), ev)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ack)
}

// publishBatchHandler handles POST /api/v1/events/batch: an array in, one
// ack per event out, in order.
func (s *Server) publishBatchHandler(c *gin.Context) {
	var evs []models.Event
	if err := c.ShouldBindJSON(&evs); err != nil {
		writeBindError(c, err)
		return
	}

	acks := s.orch.PublishEvents(c.Request.Context(), evs)
	c.JSON(http.StatusOK, gin.H{"acks": acks, "count": len(acks)})
}

// wsEventsHandler handles GET /ws/events: the bidirectional publish stream
// for streaming sensors. Each client text message is one event object or an
// array of events; the matching ack (or ack array) is written back.
func (s *Server) wsEventsHandler(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, s.acceptOptions())
	if err != nil {
		slog.Warn("WebSocket upgrade failed", "path", c.Request.URL.Path, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ctx := c.Request.Context()
	slog.Info("Event publish stream opened", "remote", c.Request.RemoteAddr)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			slog.Info("Event publish stream closed", "remote", c.Request.RemoteAddr)
			return
		}
		s.handleStreamPublish(ctx, conn, data)
	}
}

// handleStreamPublish publishes one stream message. Malformed payloads are
// warned about and answered with a rejected ack; they never take the stream
// down.
func (s *Server) handleStreamPublish(ctx context.Context, conn *websocket.Conn, data []byte) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '[' {
		var evs []models.Event
		if err := json.Unmarshal(trimmed, &evs); err != nil {
			slog.Warn("Invalid event batch on publish stream", "error", err)
			writeStreamJSON(ctx, conn, models.PublishAck{Accepted: false, ErrorMessage: "invalid event batch payload"})
			return
		}
		writeStreamJSON(ctx, conn, s.orch.PublishEvents(ctx, evs))
		return
	}

	var ev models.Event
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		slog.Warn("Invalid event on publish stream", "error", err)
		writeStreamJSON(ctx, conn, models.PublishAck{Accepted: false, ErrorMessage: "invalid event payload"})
		return
	}
	ack, err := s.orch.PublishEvent(ctx, ev)
	if err != nil {
		ack = models.PublishAck{EventID: ev.ID, Accepted: false, ErrorMessage: err.Error()}
	}
	writeStreamJSON(ctx, conn, ack)
}

func writeStreamJSON(ctx context.Context, conn *websocket.Conn, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Stream ack marshal failed", "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Warn("Stream ack write failed", "error", err)
	}
}

func (s *Server) acceptOptions() *websocket.AcceptOptions {
	return &websocket.AcceptOptions{
		OriginPatterns: s.cfg.Server.AllowedWSOrigins,
	}
}
