package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLearningStrategyIsValid(t *testing.T) {
	tests := []struct {
		name     string
		strategy LearningStrategy
		valid    bool
	}{
		{"bayesian", LearningStrategyBayesian, true},
		{"frozen", LearningStrategyFrozen, true},
		{"invalid", LearningStrategy("genetic"), false},
		{"uppercase", LearningStrategy("BAYESIAN"), false},
		{"empty", LearningStrategy(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.strategy.IsValid())
		})
	}
}

func TestEmbeddingProviderTypeIsValid(t *testing.T) {
	tests := []struct {
		name     string
		provider EmbeddingProviderType
		valid    bool
	}{
		{"hash", EmbeddingProviderHash, true},
		{"ollama", EmbeddingProviderOllama, true},
		{"none", EmbeddingProviderNone, true},
		{"invalid", EmbeddingProviderType("word2vec"), false},
		{"empty", EmbeddingProviderType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.provider.IsValid())
		})
	}
}

func TestLLMProviderTypeIsValid(t *testing.T) {
	tests := []struct {
		name     string
		provider LLMProviderType
		valid    bool
	}{
		{"ollama", LLMProviderTypeOllama, true},
		{"openai", LLMProviderTypeOpenAI, true},
		{"none", LLMProviderTypeNone, true},
		{"invalid", LLMProviderType("bard"), false},
		{"empty", LLMProviderType(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.provider.IsValid())
		})
	}
}
