package config

import "time"

// DecisionConfig contains decision layer (executive) and heuristic
// extraction configuration.
type DecisionConfig struct {
	// Address is the advertised address of the executive service,
	// reported in registry lookups. Empty means in-process.
	Address string `yaml:"address"`

	// Provider selects the LLM backend for reasoning and extraction.
	Provider LLMProviderType `yaml:"provider"`

	// BaseURL is the chat endpoint base URL.
	BaseURL string `yaml:"base_url"`

	// Model is the model name sent with each request.
	Model string `yaml:"model"`

	// APIKeyEnv names the environment variable holding the API key.
	// Empty means no authentication header is sent.
	APIKeyEnv string `yaml:"api_key_env"`

	// RequestTimeout bounds a single LLM call. On timeout the event falls
	// back to storage-only with error_message=llm_unavailable.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// TraceRetention is how long completed event traces stay available
	// for feedback-driven heuristic extraction.
	TraceRetention time.Duration `yaml:"trace_retention"`

	// TraceCleanupThreshold triggers expiry sweeps once the live trace
	// count exceeds it.
	TraceCleanupThreshold int `yaml:"trace_cleanup_threshold"`

	// ExtractionSimilarityThreshold is the per-heuristic match threshold
	// assigned to newly extracted heuristics when the LLM does not
	// propose one.
	ExtractionSimilarityThreshold float64 `yaml:"extraction_similarity_threshold"`

	// DedupSimilarity rejects extraction when an existing same-source
	// heuristic condition is at least this similar.
	DedupSimilarity float64 `yaml:"dedup_similarity"`

	// MinConditionLength rejects extracted conditions shorter than this
	// many characters.
	MinConditionLength int `yaml:"min_condition_length"`
}

// DefaultDecisionConfig returns the built-in decision layer defaults.
func DefaultDecisionConfig() *DecisionConfig {
	return &DecisionConfig{
		Provider:                      LLMProviderTypeOllama,
		BaseURL:                       "http://localhost:11434",
		Model:                         "llama3.2",
		RequestTimeout:                10 * time.Second,
		TraceRetention:                300 * time.Second,
		TraceCleanupThreshold:         100,
		ExtractionSimilarityThreshold: 0.7,
		DedupSimilarity:               0.95,
		MinConditionLength:            5,
	}
}
