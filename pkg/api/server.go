// Package api is the HTTP/WebSocket surface of the orchestrator: event
// publishing, component lifecycle, feedback, queue and cache introspection,
// and the response subscription stream.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/decision"
	"github.com/gladys-ai/gladys/pkg/events"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
	"github.com/gladys-ai/gladys/pkg/orchestrator"
	"github.com/gladys-ai/gladys/pkg/salience"

	"github.com/google/uuid"
)

// MemoryReader is the read-only slice of the memory store the API serves;
// satisfied by memory.Store.
type MemoryReader interface {
	ListHeuristics(ctx context.Context, f memory.HeuristicFilter) ([]models.Heuristic, error)
	GetHeuristic(ctx context.Context, id uuid.UUID) (models.Heuristic, error)
	ListFires(ctx context.Context, f memory.FireFilter) ([]models.FireListItem, int, error)
}

// StatsProvider reports decision layer activity; satisfied by
// decision.Executive.
type StatsProvider interface {
	Stats(ctx context.Context) decision.Stats
}

// Server wires the HTTP handlers over the orchestrator and its subsystems.
// gateway, executive, pool, and connManager tolerate nil for degraded or
// partial deployments; the affected endpoints then answer with what they
// have.
type Server struct {
	cfg         *config.Config
	orch        *orchestrator.Orchestrator
	gateway     *salience.Gateway
	store       MemoryReader
	executive   StatsProvider
	pool        *pgxpool.Pool
	connManager *events.ConnectionManager

	httpSrv *http.Server
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, gateway *salience.Gateway, store MemoryReader, executive StatsProvider, pool *pgxpool.Pool, connManager *events.ConnectionManager) *Server {
	return &Server{
		cfg:         cfg,
		orch:        orch,
		gateway:     gateway,
		store:       store,
		executive:   executive,
		pool:        pool,
		connManager: connManager,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(securityHeaders())
	r.Use(requestLogger())

	r.GET("/health", s.healthHandler)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/events", s.publishEventHandler)
		v1.POST("/events/batch", s.publishBatchHandler)

		v1.POST("/components", s.registerComponentHandler)
		v1.GET("/components", s.listComponentsHandler)
		v1.DELETE("/components/:id", s.unregisterComponentHandler)
		v1.POST("/components/:id/heartbeat", s.heartbeatHandler)
		v1.POST("/components/:id/commands", s.sendCommandHandler)

		v1.POST("/feedback", s.provideFeedbackHandler)

		v1.GET("/queue/events", s.queueEventsHandler)
		v1.GET("/queue/stats", s.queueStatsHandler)

		v1.GET("/cache/stats", s.cacheStatsHandler)
		v1.GET("/cache/heuristics", s.cacheHeuristicsHandler)

		v1.GET("/heuristics", s.listHeuristicsHandler)
		v1.GET("/heuristics/:id", s.getHeuristicHandler)
		v1.GET("/fires", s.listFiresHandler)
	}

	r.GET("/ws/events", s.wsEventsHandler)
	r.GET("/ws/responses", s.wsResponsesHandler)

	return r
}

// Start begins serving on the configured address. Blocks until the listener
// fails or Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server: %w", err)
	}
	return s.StartWithListener(ln)
}

// StartWithListener serves on a pre-bound listener. Tests use this with an
// OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("API server listening", "addr", ln.Addr().String())
	if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown drains open connections, bounded by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}
