package salience

import (
	"testing"
	"time"

	"github.com/google/uuid"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/models"
)

// vecHeuristic builds a cache-ready heuristic around a synthetic condition
// embedding. Alpha/Beta default to strong evidence (confidence 0.9).
func vecHeuristic(name string, emb []float32, mutate ...func(*models.Heuristic)) models.Heuristic {
	v := pgvector.NewVector(emb)
	h := models.Heuristic{
		ID:                 uuid.New(),
		Name:               name,
		ConditionText:      name,
		ConditionEmbedding: &v,
		Alpha:              9,
		Beta:               1,
	}
	for _, m := range mutate {
		m(&h)
	}
	return h
}

func TestFindMatching_ThresholdAndRanking(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	exact := vecHeuristic("exact", []float32{1, 0, 0}, func(h *models.Heuristic) {
		h.Alpha, h.Beta = 1, 1 // confidence 0.5
	})
	near := vecHeuristic("near", []float32{0.8, 0.6, 0}) // sim 0.8 vs query, confidence 0.9
	far := vecHeuristic("far", []float32{0, 1, 0})       // sim 0 vs query

	cache.add(exact)
	cache.add(near)
	cache.add(far)

	matches, expired := cache.findMatching([]float32{1, 0, 0}, "", 0.7, 0.5)
	require.Empty(t, expired)
	require.Len(t, matches, 2, "far misses the similarity floor")

	// Ranked by similarity x confidence: near scores 0.8*0.9=0.72,
	// exact scores 1.0*0.5=0.5.
	assert.Equal(t, near.ID, matches[0].id)
	assert.Equal(t, exact.ID, matches[1].id)
	assert.InDelta(t, 0.8, matches[0].similarity, 0.001)
	assert.InDelta(t, 1.0, matches[1].similarity, 0.001)
}

func TestFindMatching_PerHeuristicThresholdRaisesFloor(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	strict := vecHeuristic("strict", []float32{0.8, 0.6, 0}, func(h *models.Heuristic) {
		h.SimilarityThreshold = 0.9
	})
	cache.add(strict)

	// sim 0.8 clears the global floor but not the heuristic's own.
	matches, _ := cache.findMatching([]float32{1, 0, 0}, "", 0.7, 0.5)
	assert.Empty(t, matches)

	// An exact query clears both.
	matches, _ = cache.findMatching([]float32{0.8, 0.6, 0}, "", 0.7, 0.5)
	assert.Len(t, matches, 1)
}

func TestFindMatching_SkipsFrozenAndLowConfidence(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	cache.add(vecHeuristic("frozen", []float32{1, 0, 0}, func(h *models.Heuristic) {
		h.Frozen = true
	}))
	cache.add(vecHeuristic("doubtful", []float32{1, 0, 0}, func(h *models.Heuristic) {
		h.Alpha, h.Beta = 1, 4 // confidence 0.2
	}))

	matches, _ := cache.findMatching([]float32{1, 0, 0}, "", 0.7, 0.5)
	assert.Empty(t, matches)
}

func TestFindMatching_SourceScope(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	scoped := vecHeuristic("scoped", []float32{1, 0, 0}, func(h *models.Heuristic) {
		h.Source = "sensor.kitchen"
	})
	unscoped := vecHeuristic("unscoped", []float32{1, 0, 0})
	cache.add(scoped)
	cache.add(unscoped)

	matches, _ := cache.findMatching([]float32{1, 0, 0}, "sensor.hall", 0.7, 0.5)
	require.Len(t, matches, 1)
	assert.Equal(t, unscoped.ID, matches[0].id)

	matches, _ = cache.findMatching([]float32{1, 0, 0}, "sensor.kitchen", 0.7, 0.5)
	assert.Len(t, matches, 2)
}

func TestCache_LRUEviction(t *testing.T) {
	cache := newHeuristicCache(2, 0)

	a := vecHeuristic("a", []float32{1, 0, 0})
	b := vecHeuristic("b", []float32{0, 1, 0})
	c := vecHeuristic("c", []float32{0, 0, 1})

	cache.add(a)
	time.Sleep(time.Millisecond)
	cache.add(b)
	time.Sleep(time.Millisecond)

	// Hitting a makes b the least recently used.
	cache.recordHit(a.ID)
	cache.add(c)

	_, ok := cache.get(a.ID)
	assert.True(t, ok, "recently hit entry survives")
	_, ok = cache.get(b.ID)
	assert.False(t, ok, "least recently used entry evicted")
	_, ok = cache.get(c.ID)
	assert.True(t, ok)
}

func TestCache_TTLExpiry(t *testing.T) {
	cache := newHeuristicCache(10, 10*time.Millisecond)
	cache.add(vecHeuristic("short-lived", []float32{1, 0, 0}))

	time.Sleep(25 * time.Millisecond)

	matches, expired := cache.findMatching([]float32{1, 0, 0}, "", 0.7, 0.5)
	assert.Empty(t, matches)
	require.Len(t, expired, 1)

	cache.removeAll(expired)
	assert.Zero(t, cache.stats().CurrentSize)
}

func TestCache_StatsAndList(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	a := vecHeuristic("a", []float32{1, 0, 0})
	b := vecHeuristic("b", []float32{0, 1, 0})
	cache.add(a)
	cache.add(b)

	cache.recordHit(a.ID)
	cache.recordHit(a.ID)
	cache.recordMiss(b.ID)

	stats := cache.stats()
	assert.Equal(t, 2, stats.CurrentSize)
	assert.Equal(t, 10, stats.MaxCapacity)
	assert.Equal(t, uint64(2), stats.TotalHits)
	assert.Equal(t, uint64(1), stats.TotalMisses)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 0.001)

	infos := cache.list()
	require.Len(t, infos, 2)
	assert.Equal(t, uint64(2), infoFor(t, infos, a.ID).HitCount)
	assert.False(t, infoFor(t, infos, a.ID).LastHit.IsZero())

	// Flush drops entries but keeps the counters.
	assert.Equal(t, 2, cache.flush())
	stats = cache.stats()
	assert.Zero(t, stats.CurrentSize)
	assert.Equal(t, uint64(2), stats.TotalHits)
}

func infoFor(t *testing.T, infos []CachedHeuristicInfo, id uuid.UUID) CachedHeuristicInfo {
	t.Helper()
	for _, info := range infos {
		if info.ID == id {
			return info
		}
	}
	t.Fatalf("no cache entry for %s", id)
	return CachedHeuristicInfo{}
}

func TestCache_AddRefreshKeepsHitHistory(t *testing.T) {
	cache := newHeuristicCache(10, 0)

	h := vecHeuristic("evolving", []float32{1, 0, 0})
	cache.add(h)
	cache.recordHit(h.ID)

	h.Alpha = 19 // confidence moves from 0.9 to 0.95
	cache.add(h)

	entry, ok := cache.get(h.ID)
	require.True(t, ok)
	assert.Equal(t, uint64(1), entry.HitCount)
	assert.InDelta(t, 0.95, entry.Confidence(), 0.001)
}
