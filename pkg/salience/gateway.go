package salience

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/gladys-ai/gladys/pkg/config"
	"github.com/gladys-ai/gladys/pkg/embedding"
	"github.com/gladys-ai/gladys/pkg/memory"
	"github.com/gladys-ai/gladys/pkg/models"
)

// HeuristicSource is the slice of the memory store the gateway falls back
// to on cache misses.
type HeuristicSource interface {
	QueryMatchingHeuristics(ctx context.Context, q memory.MatchQuery) ([]models.HeuristicMatch, error)
}

// MatchResult describes the heuristic that won an evaluation.
type MatchResult struct {
	HeuristicID     uuid.UUID          `json:"heuristic_id"`
	Similarity      float64            `json:"similarity"`
	Confidence      float64            `json:"confidence"`
	SuggestedAction string             `json:"suggested_action,omitempty"`
	ConditionText   string             `json:"condition_text,omitempty"`
	SalienceBoost   map[string]float64 `json:"salience_boost,omitempty"`
	FromCache       bool               `json:"from_cache"`
}

// Gateway scores incoming events against cached heuristics: the fast "does
// this ring a bell?" check in front of the decision layer. Matching is
// cosine similarity between the event text embedding and heuristic
// condition embeddings, served from an in-memory cache warmed from the
// memory store.
type Gateway struct {
	cfg      *config.SalienceConfig
	embedder embedding.Provider
	store    HeuristicSource
	cache    *heuristicCache
	recent   *recentRing
	started  time.Time
}

// The gateway doubles as the store's change notifier for in-process wiring.
var _ memory.HeuristicNotifier = (*Gateway)(nil)

// NewGateway creates a salience gateway over the given heuristic source.
func NewGateway(cfg *config.SalienceConfig, embedder embedding.Provider, store HeuristicSource) *Gateway {
	return &Gateway{
		cfg:      cfg,
		embedder: embedder,
		store:    store,
		cache:    newHeuristicCache(cfg.CacheSize, cfg.CacheTTL),
		recent:   newRecentRing(cfg.NoveltyWindow),
		started:  time.Now(),
	}
}

// EvaluateSalience scores one event. The vector starts at the baseline
// (novelty only), a matching heuristic max-merges its boost on top, and an
// event nothing recognizes gets the unmatched novelty boost instead. The
// returned match is nil when no heuristic fired. Degraded evaluation never
// fails the call: the error rides the vector's Error field and the caller
// gets a usable baseline.
func (g *Gateway) EvaluateSalience(ctx context.Context, event models.Event) (models.SalienceVector, *MatchResult) {
	vec := models.SalienceVector{Novelty: g.cfg.BaselineNovelty}
	if event.RawText == "" {
		return vec, nil
	}

	if g.cfg.EvalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.EvalTimeout)
		defer cancel()
	}

	var query []float32
	emb, err := g.embedder.Embed(ctx, event.RawText)
	if err != nil {
		slog.Warn("Embedding failed, falling back to storage matching",
			"event_id", event.ID, "error", err)
	} else {
		query = emb.Slice()
	}

	match := g.matchHeuristic(ctx, query, event, &vec)
	if match == nil {
		vec.Novelty = maxf(vec.Novelty, g.cfg.UnmatchedNoveltyBoost)
	} else {
		vec.ApplyBoost(match.SalienceBoost)
	}

	// Repeat suppression: an event we just saw a near-duplicate of is not
	// novel, however unmatched it is.
	if query != nil {
		if repeat := g.recent.observe(query); repeat >= g.cfg.NoveltyThreshold {
			vec.Habituation = maxf(vec.Habituation, repeat)
			if damped := 1 - repeat; damped < vec.Novelty {
				vec.Novelty = damped
			}
		}
	}

	return vec, match
}

// matchHeuristic runs the two-tier lookup: cache scan first, then the
// memory store with cache warming. Returns nil when nothing matched.
func (g *Gateway) matchHeuristic(ctx context.Context, query []float32, event models.Event, vec *models.SalienceVector) *MatchResult {
	if query != nil {
		matches, expired := g.cache.findMatching(query, event.Source, g.cfg.MinSimilarity, g.cfg.MinConfidence)
		g.cache.removeAll(expired)

		if len(matches) > 0 {
			best := matches[0]
			entry, ok := g.cache.get(best.id)
			if ok {
				g.cache.recordHit(best.id)
				return resultFrom(&entry.Heuristic, best.similarity, true)
			}
		}
	}

	// Cache miss (or no embedding): ask storage, warm the cache with what
	// comes back so the next lookup stays local.
	var queryVec *pgvector.Vector
	if query != nil {
		v := pgvector.NewVector(query)
		queryVec = &v
	}
	stored, err := g.store.QueryMatchingHeuristics(ctx, memory.MatchQuery{
		Text:          event.RawText,
		Embedding:     queryVec,
		Source:        event.Source,
		MinSimilarity: g.cfg.MinSimilarity,
		MinConfidence: g.cfg.MinConfidence,
		Limit:         10,
	})
	if err != nil {
		slog.Warn("Heuristic storage query failed", "event_id", event.ID, "error", err)
		vec.Error = err.Error()
		return nil
	}

	var best *models.HeuristicMatch
	for i := range stored {
		g.cache.add(stored[i].Heuristic)
		if best == nil || stored[i].Score() > best.Score() {
			best = &stored[i]
		}
	}
	if best == nil {
		return nil
	}

	// A storage-served match is a cache miss even though it matched.
	g.cache.recordMiss(best.Heuristic.ID)
	return resultFrom(&best.Heuristic, best.Similarity, false)
}

func resultFrom(h *models.Heuristic, similarity float64, fromCache bool) *MatchResult {
	return &MatchResult{
		HeuristicID:     h.ID,
		Similarity:      similarity,
		Confidence:      h.Confidence(),
		SuggestedAction: h.SuggestedAction(),
		ConditionText:   h.ConditionText,
		SalienceBoost:   h.SalienceBoost(),
		FromCache:       fromCache,
	}
}

// NotifyHeuristicChange invalidates the cache entry for a changed
// heuristic. Every change type evicts, unknown types included: the next
// evaluation refetches from storage, so a stale entry can never outlive
// one round-trip. Satisfies memory.HeuristicNotifier for in-process wiring
// and is also fed by the gladys_heuristics NOTIFY channel.
func (g *Gateway) NotifyHeuristicChange(ctx context.Context, heuristicID uuid.UUID, changeType string) error {
	switch changeType {
	case "created", "updated", "deleted":
	default:
		slog.Debug("Unknown heuristic change type, evicting anyway",
			"heuristic_id", heuristicID, "change_type", changeType)
	}
	evicted := g.cache.remove(heuristicID)
	slog.Info("Heuristic change processed",
		"heuristic_id", heuristicID, "change_type", changeType, "evicted", evicted)
	return nil
}

// EvictFromCache removes one heuristic from the cache, reporting whether
// it was present.
func (g *Gateway) EvictFromCache(heuristicID uuid.UUID) bool {
	return g.cache.remove(heuristicID)
}

// FlushCache clears the heuristic cache and returns how many entries were
// dropped.
func (g *Gateway) FlushCache() int {
	n := g.cache.flush()
	slog.Info("Heuristic cache flushed", "entries_flushed", n)
	return n
}

// WarmCache preloads heuristics, typically at startup.
func (g *Gateway) WarmCache(heuristics []models.Heuristic) {
	for _, h := range heuristics {
		g.cache.add(h)
	}
}

// CacheStats returns hit/miss statistics for the heuristic cache.
func (g *Gateway) CacheStats() CacheStats {
	return g.cache.stats()
}

// ListCached returns cache entries, most recently used first.
func (g *Gateway) ListCached() []CachedHeuristicInfo {
	return g.cache.list()
}

// Uptime reports how long the gateway has been running.
func (g *Gateway) Uptime() time.Duration {
	return time.Since(g.started)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
