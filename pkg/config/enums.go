package config

// LearningStrategy defines available heuristic confidence-update strategies
type LearningStrategy string

const (
	// LearningStrategyBayesian uses Beta-Binomial updates (alpha/beta counters)
	LearningStrategyBayesian LearningStrategy = "bayesian"
	// LearningStrategyFrozen disables confidence updates entirely
	LearningStrategyFrozen LearningStrategy = "frozen"
)

// IsValid checks if the learning strategy is valid
func (s LearningStrategy) IsValid() bool {
	return s == LearningStrategyBayesian || s == LearningStrategyFrozen
}

// EmbeddingProviderType defines supported embedding backends
type EmbeddingProviderType string

const (
	// EmbeddingProviderHash is the deterministic local hashing embedder (no network)
	EmbeddingProviderHash EmbeddingProviderType = "hash"
	// EmbeddingProviderOllama calls an Ollama-compatible /api/embed endpoint
	EmbeddingProviderOllama EmbeddingProviderType = "ollama"
	// EmbeddingProviderNone disables embeddings; vector matching degrades to text search
	EmbeddingProviderNone EmbeddingProviderType = "none"
)

// IsValid checks if the embedding provider type is valid
func (t EmbeddingProviderType) IsValid() bool {
	switch t {
	case EmbeddingProviderHash,
		EmbeddingProviderOllama,
		EmbeddingProviderNone:
		return true
	default:
		return false
	}
}

// LLMProviderType defines supported decision-layer LLM backends
type LLMProviderType string

const (
	// LLMProviderTypeOllama is a local Ollama-compatible chat endpoint
	LLMProviderTypeOllama LLMProviderType = "ollama"
	// LLMProviderTypeOpenAI is an OpenAI-compatible chat completions API
	LLMProviderTypeOpenAI LLMProviderType = "openai"
	// LLMProviderTypeNone disables the decision layer; events take storage-only paths
	LLMProviderTypeNone LLMProviderType = "none"
)

// IsValid checks if the LLM provider type is valid
func (t LLMProviderType) IsValid() bool {
	switch t {
	case LLMProviderTypeOllama,
		LLMProviderTypeOpenAI,
		LLMProviderTypeNone:
		return true
	default:
		return false
	}
}
