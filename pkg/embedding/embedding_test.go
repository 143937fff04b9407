package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gladys-ai/gladys/pkg/config"
)

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		name     string
		provider config.EmbeddingProviderType
		want     any
		wantErr  bool
	}{
		{name: "hash", provider: config.EmbeddingProviderHash, want: &HashProvider{}},
		{name: "ollama", provider: config.EmbeddingProviderOllama, want: &OllamaProvider{}},
		{name: "none", provider: config.EmbeddingProviderNone, want: &NoopProvider{}},
		{name: "unknown", provider: config.EmbeddingProviderType("word2vec"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultMemoryConfig()
			cfg.EmbeddingProvider = tt.provider

			p, err := NewFromConfig(cfg)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown provider")
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.Equal(t, cfg.EmbeddingDimensions, p.Dimensions())
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1.0},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0.0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1.0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0.0},
		{name: "length mismatch", a: []float32{1}, b: []float32{1, 1}, want: 0.0},
		{name: "empty", a: nil, b: nil, want: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}
