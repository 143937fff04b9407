// Package embedding provides vector embedding generation for semantic matching.
//
// Defines a Provider interface with three implementations: a deterministic
// feature-hashing provider (the default, no external model required), an
// Ollama-backed provider for real embedding models, and a noop provider that
// returns zero vectors. The interface allows swapping providers without
// changing consumers.
package embedding

import (
	"context"
	"fmt"
	"math"

	"github.com/pgvector/pgvector-go"

	"github.com/gladys-ai/gladys/pkg/config"
)

// Provider generates vector embeddings from text.
type Provider interface {
	// Embed generates a single embedding vector from text.
	Embed(ctx context.Context, text string) (pgvector.Vector, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error)

	// Dimensions returns the embedding vector dimensionality.
	Dimensions() int
}

// NewFromConfig builds the provider selected by the memory configuration.
func NewFromConfig(cfg *config.MemoryConfig) (Provider, error) {
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderHash:
		return NewHashProvider(cfg.EmbeddingDimensions), nil
	case config.EmbeddingProviderOllama:
		return NewOllamaProvider(cfg.EmbeddingURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	case config.EmbeddingProviderNone:
		return NewNoopProvider(cfg.EmbeddingDimensions), nil
	default:
		return nil, fmt.Errorf("embedding: unknown provider %q", cfg.EmbeddingProvider)
	}
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns 0 when either vector has zero norm or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
