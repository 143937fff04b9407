package config

// MemoryConfig contains memory store and embedding configuration.
type MemoryConfig struct {
	// Address is the advertised address of the memory service, reported
	// in registry lookups. Empty means in-process.
	Address string `yaml:"address"`

	// EmbeddingProvider selects the embedding backend.
	EmbeddingProvider EmbeddingProviderType `yaml:"embedding_provider"`

	// EmbeddingURL is the base URL for network embedding providers.
	EmbeddingURL string `yaml:"embedding_url"`

	// EmbeddingModel is the model name passed to network providers.
	EmbeddingModel string `yaml:"embedding_model"`

	// EmbeddingDimensions is the expected vector width. Stored vectors of
	// a different width are rejected at WARN and skipped.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`

	// QueryLimit caps result rows for episode and heuristic queries when
	// the caller does not specify one.
	QueryLimit int `yaml:"query_limit"`

	// ContextMaxHops bounds entity-graph expansion when assembling
	// context for the decision layer.
	ContextMaxHops int `yaml:"context_max_hops"`
}

// DefaultMemoryConfig returns the built-in memory store defaults.
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		EmbeddingProvider:   EmbeddingProviderHash,
		EmbeddingURL:        "http://localhost:11434",
		EmbeddingModel:      "nomic-embed-text",
		EmbeddingDimensions: 384,
		QueryLimit:          20,
		ContextMaxHops:      2,
	}
}
