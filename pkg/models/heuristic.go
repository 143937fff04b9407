package models

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// HeuristicOrigin records where a heuristic came from.
type HeuristicOrigin string

const (
	// OriginBuiltIn ships with the system.
	OriginBuiltIn HeuristicOrigin = "built_in"
	// OriginPack was installed from a heuristic pack.
	OriginPack HeuristicOrigin = "pack"
	// OriginLearned was extracted from LLM reasoning after positive feedback.
	OriginLearned HeuristicOrigin = "learned"
	// OriginUser was authored directly by a user.
	OriginUser HeuristicOrigin = "user"
)

// IsValid checks if the origin is a known value.
func (o HeuristicOrigin) IsValid() bool {
	switch o {
	case OriginBuiltIn, OriginPack, OriginLearned, OriginUser:
		return true
	default:
		return false
	}
}

// Heuristic is a learned or authored condition→action rule. Confidence is a
// Beta-Binomial posterior mean over the stored alpha/beta counts and is
// always computed, never stored.
type Heuristic struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`

	// Condition is persisted as JSONB {"text": ..., "domain": ...};
	// ConditionText is the matched text, ConditionDomain an optional tag.
	ConditionText      string           `json:"condition_text"`
	ConditionDomain    string           `json:"condition_domain,omitempty"`
	ConditionEmbedding *pgvector.Vector `json:"-"`
	Action             map[string]any   `json:"action"`

	// Beta-Binomial evidence counts, both strictly positive. New heuristics
	// start at the uniform prior alpha=1, beta=1.
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`

	// SimilarityThreshold is the per-heuristic cosine floor for matching;
	// the effective floor is max(global, this).
	SimilarityThreshold float64 `json:"similarity_threshold"`

	// Source scopes the heuristic to one event source. Empty means any
	// source; a scoped heuristic only matches its exact source.
	Source string `json:"source,omitempty"`

	Frozen   bool            `json:"frozen"`
	Origin   HeuristicOrigin `json:"origin"`
	OriginID string          `json:"origin_id,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastFired    *time.Time `json:"last_fired,omitempty"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	FireCount    int        `json:"fire_count"`
	SuccessCount int        `json:"success_count"`
}

// Confidence returns the Beta posterior mean alpha/(alpha+beta).
// Historically inconsistent rows (non-positive counts) are tolerated by
// flooring at the uniform prior.
func (h *Heuristic) Confidence() float64 {
	a, b := h.Alpha, h.Beta
	if a <= 0 {
		a = 1
	}
	if b <= 0 {
		b = 1
	}
	return a / (a + b)
}

// SuggestedAction returns the action's message text, if present.
func (h *Heuristic) SuggestedAction() string {
	if h.Action == nil {
		return ""
	}
	if msg, ok := h.Action["message"].(string); ok {
		return msg
	}
	return ""
}

// boostDims is the whitelist of dimension keys a heuristic's action may
// boost. Unknown keys, NaN, and out-of-range values are dropped or clamped.
var boostDims = map[string]bool{
	DimNovelty: true, DimGoalRelevance: true, DimOpportunity: true,
	DimActionability: true, DimSocial: true, DimThreat: true,
	DimSalience: true, DimHabituation: true,
}

// SalienceBoost returns the action's per-dimension salience boost map, if
// present. Keys outside the dimension whitelist and NaN values are dropped;
// values are clamped to [0,1].
func (h *Heuristic) SalienceBoost() map[string]float64 {
	if h.Action == nil {
		return nil
	}
	raw, ok := h.Action["salience"].(map[string]any)
	if !ok {
		return nil
	}
	boost := make(map[string]float64, len(raw))
	for dim, v := range raw {
		f, ok := v.(float64)
		if !ok || !boostDims[dim] || math.IsNaN(f) {
			continue
		}
		if f < 0 {
			f = 0
		} else if f > 1 {
			f = 1
		}
		boost[dim] = f
	}
	return boost
}

// MatchesSource reports whether the heuristic may fire for events from the
// given source. Unscoped heuristics match everything.
func (h *Heuristic) MatchesSource(source string) bool {
	return h.Source == "" || h.Source == source
}

// HeuristicMatch is one vector-search hit: a heuristic plus its similarity
// to the query embedding.
type HeuristicMatch struct {
	Heuristic  Heuristic `json:"heuristic"`
	Similarity float64   `json:"similarity"`
}

// Score ranks matches: similarity weighted by confidence.
func (m *HeuristicMatch) Score() float64 {
	return m.Similarity * m.Heuristic.Confidence()
}
