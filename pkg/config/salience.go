package config

import "time"

// SalienceConfig contains salience gateway and heuristic cache configuration.
type SalienceConfig struct {
	// Address is the advertised address of the salience gateway, reported
	// in registry lookups. Empty means in-process.
	Address string `yaml:"address"`

	// CacheSize is the max number of heuristics held in the in-memory
	// match cache. Least-recently-used entries are evicted beyond it.
	CacheSize int `yaml:"cache_size"`

	// CacheTTL expires cached heuristics regardless of use. Zero disables
	// TTL expiry.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// MinSimilarity is the global floor for cosine similarity between an
	// event embedding and a heuristic condition. Per-heuristic thresholds
	// may raise it, never lower it.
	MinSimilarity float64 `yaml:"min_similarity"`

	// MinConfidence excludes heuristics below this Beta-mean confidence
	// from matching.
	MinConfidence float64 `yaml:"min_confidence"`

	// NoveltyThreshold is the similarity above which an event counts as a
	// repeat of recent activity, lowering its novelty dimension.
	NoveltyThreshold float64 `yaml:"novelty_threshold"`

	// NoveltyWindow is the number of recent event embeddings kept for
	// novelty comparison (FIFO).
	NoveltyWindow int `yaml:"novelty_window"`

	// BaselineNovelty seeds every vector's novelty dimension before
	// matching.
	BaselineNovelty float64 `yaml:"baseline_novelty"`

	// UnmatchedNoveltyBoost raises novelty when no heuristic matches:
	// an event nothing recognizes is by definition new.
	UnmatchedNoveltyBoost float64 `yaml:"unmatched_novelty_boost"`

	// EvalTimeout bounds a single EvaluateSalience call.
	EvalTimeout time.Duration `yaml:"eval_timeout"`
}

// DefaultSalienceConfig returns the built-in salience gateway defaults.
func DefaultSalienceConfig() *SalienceConfig {
	return &SalienceConfig{
		CacheSize:             50,
		CacheTTL:              5 * time.Minute,
		MinSimilarity:         0.7,
		MinConfidence:         0.5,
		NoveltyThreshold:      0.9,
		NoveltyWindow:         50,
		BaselineNovelty:       0.1,
		UnmatchedNoveltyBoost: 0.4,
		EvalTimeout:           500 * time.Millisecond,
	}
}
