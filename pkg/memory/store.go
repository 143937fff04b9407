// Package memory implements the persistent memory store: episodic events,
// heuristics with Beta-Binomial evidence counts, fire records, feedback,
// and the entity graph, all on PostgreSQL + pgvector.
package memory

import (
	"context"

	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/embedding"
	"github.com/gladys-ai/gladys/pkg/services"
)

// Sentinel errors aliased from the shared vocabulary so storage call sites
// read naturally while errors.Is keeps working across package boundaries.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = services.ErrNotFound

	// ErrFrozen is returned when a confidence update targets a frozen heuristic.
	ErrFrozen = services.ErrFrozen

	// ErrInvalidInput is returned when a write fails validation.
	ErrInvalidInput = services.ErrInvalidInput
)

// Store is the memory service backend. All methods are safe for concurrent
// use; state lives in the database.
type Store struct {
	pool     *pgxpool.Pool
	embedder embedding.Provider
	cfg      *config.MemoryConfig

	// notifier, when set, receives heuristic change notifications after
	// mutations commit. nil disables notifications.
	notifier HeuristicNotifier
}

// NewStore creates a store over an existing connection pool.
func NewStore(pool *pgxpool.Pool, embedder embedding.Provider, cfg *config.MemoryConfig) *Store {
	if cfg == nil {
		cfg = config.DefaultMemoryConfig()
	}
	return &Store{
		pool:     pool,
		embedder: embedder,
		cfg:      cfg,
	}
}

// GenerateEmbedding embeds text with the configured provider. The default
// hash provider is deterministic: identical text always yields an identical
// vector.
func (s *Store) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	return s.embedder.Embed(ctx, text)
}

// Dimensions returns the embedding width the store expects.
func (s *Store) Dimensions() int {
	return s.embedder.Dimensions()
}

// limitOrDefault substitutes the configured query limit when the caller did
// not specify one.
func (s *Store) limitOrDefault(limit int) int {
	if limit <= 0 {
		return s.cfg.QueryLimit
	}
	return limit
}
