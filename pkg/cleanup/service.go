// Package cleanup provides data retention sweeps for long-lived deployments.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/events"
	"github.com/gladys-ai/gladys/pkg/memory"
)

// Service periodically enforces retention policies:
//   - Archives episodes older than the retention window (archived episodes
//     stay in the table but drop out of recall queries)
//   - Prunes delivered stream events past their catchup TTL
//
// All operations are idempotent and safe to run from multiple processes.
type Service struct {
	config    *config.RetentionConfig
	store     *memory.Store
	publisher *events.Publisher

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new retention service.
func NewService(cfg *config.RetentionConfig, store *memory.Store, publisher *events.Publisher) *Service {
	if cfg == nil {
		cfg = config.DefaultRetentionConfig()
	}
	return &Service{
		config:    cfg,
		store:     store,
		publisher: publisher,
	}
}

// Start launches the background retention loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Retention service started",
		"episode_retention", s.config.EpisodeRetention,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.SweepInterval)
}

// Stop signals the retention loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Retention service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.archiveOldEpisodes(ctx)
	s.pruneStreamEvents(ctx)
}

func (s *Service) archiveOldEpisodes(ctx context.Context) {
	if s.config.EpisodeRetention <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.config.EpisodeRetention)
	count, err := s.store.ArchiveEpisodesBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: episode archive failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: archived old episodes", "count", count)
	}
}

func (s *Service) pruneStreamEvents(ctx context.Context) {
	if s.config.EventTTL <= 0 {
		return
	}
	cutoff := time.Now().UTC().Add(-s.config.EventTTL)
	count, err := s.publisher.PruneEventsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention: event prune failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: pruned stream events", "count", count)
	}
}
