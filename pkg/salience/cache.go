package salience

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gladys-ai/gladys/pkg/embedding"
	"github.com/gladys-ai/gladys/pkg/models"
)

// CachedHeuristic is one match-cache entry: the heuristic plus hit
// bookkeeping used for LRU ordering and cache introspection.
type CachedHeuristic struct {
	models.Heuristic

	CachedAt time.Time `json:"cached_at"`
	LastHit  time.Time `json:"last_hit,omitempty"`
	HitCount uint64    `json:"hit_count"`
	// MissCount counts matches that needed a storage round-trip while the
	// entry was (re)loaded, as opposed to pure in-memory hits.
	MissCount uint64 `json:"miss_count"`
}

// CacheStats is a point-in-time snapshot of cache effectiveness.
type CacheStats struct {
	CurrentSize int     `json:"current_size"`
	MaxCapacity int     `json:"max_capacity"`
	HitRate     float64 `json:"hit_rate"`
	TotalHits   uint64  `json:"total_hits"`
	TotalMisses uint64  `json:"total_misses"`
}

// CachedHeuristicInfo is the introspection view of one cache entry.
type CachedHeuristicInfo struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	HitCount uint64    `json:"hit_count"`
	CachedAt time.Time `json:"cached_at"`
	LastHit  time.Time `json:"last_hit,omitempty"`
}

// candidate is a cache-scan result before ranking.
type candidate struct {
	id         uuid.UUID
	similarity float64
	confidence float64
}

// heuristicCache is the in-memory heuristic match cache. Scans take the
// read lock; adds, touches, and evictions take the write lock. Entries
// expire after ttl (zero disables expiry) and are dropped lazily during
// scans and adds.
type heuristicCache struct {
	mu       sync.RWMutex
	entries  map[uuid.UUID]*CachedHeuristic
	capacity int
	ttl      time.Duration

	totalHits   uint64
	totalMisses uint64
}

func newHeuristicCache(capacity int, ttl time.Duration) *heuristicCache {
	if capacity < 1 {
		capacity = 1
	}
	return &heuristicCache{
		entries:  make(map[uuid.UUID]*CachedHeuristic, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

func (c *heuristicCache) expired(e *CachedHeuristic, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.CachedAt) >= c.ttl
}

// lruStamp is the eviction ordering key: last hit when the entry has one,
// otherwise when it was cached.
func lruStamp(e *CachedHeuristic) time.Time {
	if !e.LastHit.IsZero() {
		return e.LastHit
	}
	return e.CachedAt
}

// add inserts or replaces a heuristic, evicting the least-recently-hit
// entries when over capacity. Expired entries go first.
func (c *heuristicCache) add(h models.Heuristic) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[h.ID]; ok {
		// Refresh in place, keeping hit history.
		existing.Heuristic = h
		existing.CachedAt = now
		return
	}

	for id, e := range c.entries {
		if c.expired(e, now) {
			delete(c.entries, id)
		}
	}
	for len(c.entries) >= c.capacity {
		var oldest uuid.UUID
		var oldestAt time.Time
		for id, e := range c.entries {
			if oldestAt.IsZero() || lruStamp(e).Before(oldestAt) {
				oldest, oldestAt = id, lruStamp(e)
			}
		}
		delete(c.entries, oldest)
	}

	c.entries[h.ID] = &CachedHeuristic{Heuristic: h, CachedAt: now}
}

// findMatching scans the cache for heuristics whose condition embedding is
// close enough to the query. A heuristic qualifies when similarity clears
// max(minSimilarity, its own threshold), its confidence clears
// minConfidence, it isn't frozen, and its source scope admits the event.
// Expired entries are skipped and reported for lazy eviction.
func (c *heuristicCache) findMatching(query []float32, source string, minSimilarity, minConfidence float64) (matches []candidate, expired []uuid.UUID) {
	now := time.Now()

	c.mu.RLock()
	defer c.mu.RUnlock()

	for id, e := range c.entries {
		if c.expired(e, now) {
			expired = append(expired, id)
			continue
		}
		if e.Frozen || e.ConditionEmbedding == nil || !e.MatchesSource(source) {
			continue
		}
		conf := e.Confidence()
		if conf < minConfidence {
			continue
		}
		sim := embedding.CosineSimilarity(query, e.ConditionEmbedding.Slice())
		floor := minSimilarity
		if e.SimilarityThreshold > floor {
			floor = e.SimilarityThreshold
		}
		if sim >= floor {
			matches = append(matches, candidate{id: id, similarity: sim, confidence: conf})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].similarity*matches[i].confidence > matches[j].similarity*matches[j].confidence
	})
	return matches, expired
}

// get returns a copy of the entry, or false when absent.
func (c *heuristicCache) get(id uuid.UUID) (CachedHeuristic, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok {
		return CachedHeuristic{}, false
	}
	return *e, true
}

// recordHit touches the entry and counts an in-memory hit.
func (c *heuristicCache) recordHit(id uuid.UUID) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalHits++
	if e, ok := c.entries[id]; ok {
		e.LastHit = now
		e.HitCount++
	}
}

// recordMiss touches the entry (when present) and counts a storage
// round-trip.
func (c *heuristicCache) recordMiss(id uuid.UUID) {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalMisses++
	if e, ok := c.entries[id]; ok {
		e.LastHit = now
		e.MissCount++
	}
}

// remove evicts one entry, reporting whether it was present.
func (c *heuristicCache) remove(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[id]
	delete(c.entries, id)
	return ok
}

func (c *heuristicCache) removeAll(ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.entries, id)
	}
}

// flush clears every entry and returns how many were dropped. Hit/miss
// totals survive a flush.
func (c *heuristicCache) flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[uuid.UUID]*CachedHeuristic, c.capacity)
	return n
}

func (c *heuristicCache) stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := CacheStats{
		CurrentSize: len(c.entries),
		MaxCapacity: c.capacity,
		TotalHits:   c.totalHits,
		TotalMisses: c.totalMisses,
	}
	if total := c.totalHits + c.totalMisses; total > 0 {
		s.HitRate = float64(c.totalHits) / float64(total)
	}
	return s
}

// list returns entry summaries, most recently used first.
func (c *heuristicCache) list() []CachedHeuristicInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make([]CachedHeuristicInfo, 0, len(c.entries))
	for _, e := range c.entries {
		infos = append(infos, CachedHeuristicInfo{
			ID:       e.ID,
			Name:     e.Name,
			HitCount: e.HitCount,
			CachedAt: e.CachedAt,
			LastHit:  e.LastHit,
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		a, b := infos[i].LastHit, infos[j].LastHit
		if a.IsZero() {
			a = infos[i].CachedAt
		}
		if b.IsZero() {
			b = infos[j].CachedAt
		}
		return a.After(b)
	})
	return infos
}
