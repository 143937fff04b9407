package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultTestConfig() *Config {
	return &Config{
		Server:       DefaultServerConfig(),
		Orchestrator: DefaultOrchestratorConfig(),
		Salience:     DefaultSalienceConfig(),
		Memory:       DefaultMemoryConfig(),
		Decision:     DefaultDecisionConfig(),
	}
}

func TestValidateAllDefaults(t *testing.T) {
	cfg := defaultTestConfig()
	v := NewValidator(cfg)
	require.NoError(t, v.ValidateAll())
}

func TestValidateServer(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "nil server",
			mutate:  func(c *Config) { c.Server = nil },
			wantErr: true,
			errMsg:  "server configuration is nil",
		},
		{
			name:    "port zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
			errMsg:  "port",
		},
		{
			name:    "port too high",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: true,
			errMsg:  "must be between 1 and 65535",
		},
		{
			name:    "shutdown timeout zero",
			mutate:  func(c *Config) { c.Server.ShutdownTimeout = 0 },
			wantErr: true,
			errMsg:  "shutdown_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateServer()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateOrchestrator(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "nil orchestrator",
			mutate:  func(c *Config) { c.Orchestrator = nil },
			wantErr: true,
			errMsg:  "orchestrator configuration is nil",
		},
		{
			name:    "queue capacity zero",
			mutate:  func(c *Config) { c.Orchestrator.QueueCapacity = 0 },
			wantErr: true,
			errMsg:  "queue_capacity must be at least 1",
		},
		{
			name:    "worker count too low",
			mutate:  func(c *Config) { c.Orchestrator.WorkerCount = 0 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "worker count too high",
			mutate:  func(c *Config) { c.Orchestrator.WorkerCount = 51 },
			wantErr: true,
			errMsg:  "worker_count must be between 1 and 50",
		},
		{
			name:    "high salience threshold above one",
			mutate:  func(c *Config) { c.Orchestrator.HighSalienceThreshold = 1.5 },
			wantErr: true,
			errMsg:  "high_salience_threshold",
		},
		{
			name: "emergency salience below high threshold",
			mutate: func(c *Config) {
				c.Orchestrator.HighSalienceThreshold = 0.8
				c.Orchestrator.EmergencySalienceThreshold = 0.75
			},
			wantErr: true,
			errMsg:  "must be at least high_salience_threshold",
		},
		{
			name:    "fallback novelty negative",
			mutate:  func(c *Config) { c.Orchestrator.FallbackNovelty = -0.1 },
			wantErr: true,
			errMsg:  "fallback_novelty",
		},
		{
			name:    "emergency confidence above one",
			mutate:  func(c *Config) { c.Orchestrator.EmergencyConfidenceThreshold = 1.2 },
			wantErr: true,
			errMsg:  "emergency_confidence_threshold",
		},
		{
			name: "outcome pattern without trigger",
			mutate: func(c *Config) {
				c.Orchestrator.OutcomePatterns = []OutcomePattern{{OutcomePattern: "oven off"}}
			},
			wantErr: true,
			errMsg:  "trigger_pattern is empty",
		},
		{
			name: "heartbeat timeout not greater than interval",
			mutate: func(c *Config) {
				c.Orchestrator.HeartbeatInterval = 30 * time.Second
				c.Orchestrator.HeartbeatTimeout = 30 * time.Second
			},
			wantErr: true,
			errMsg:  "heartbeat_timeout must be greater than heartbeat_interval",
		},
		{
			name: "outcome scan not less than deadline",
			mutate: func(c *Config) {
				c.Orchestrator.OutcomeDeadline = 2 * time.Second
				c.Orchestrator.OutcomeScanInterval = 2 * time.Second
			},
			wantErr: true,
			errMsg:  "outcome_scan_interval",
		},
		{
			name:    "nil learning",
			mutate:  func(c *Config) { c.Orchestrator.Learning = nil },
			wantErr: true,
			errMsg:  "learning configuration is nil",
		},
		{
			name:    "invalid learning strategy",
			mutate:  func(c *Config) { c.Orchestrator.Learning.Strategy = "genetic" },
			wantErr: true,
			errMsg:  "invalid strategy",
		},
		{
			name:    "explicit weight above one",
			mutate:  func(c *Config) { c.Orchestrator.Learning.ExplicitWeight = 1.2 },
			wantErr: true,
			errMsg:  "explicit_weight",
		},
		{
			name:    "ignored threshold zero",
			mutate:  func(c *Config) { c.Orchestrator.Learning.IgnoredThreshold = 0 },
			wantErr: true,
			errMsg:  "ignored_threshold must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateOrchestrator()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateSalience(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "zero TTL is valid",
			mutate:  func(c *Config) { c.Salience.CacheTTL = 0 },
			wantErr: false,
		},
		{
			name:    "nil salience",
			mutate:  func(c *Config) { c.Salience = nil },
			wantErr: true,
			errMsg:  "salience configuration is nil",
		},
		{
			name:    "cache size zero",
			mutate:  func(c *Config) { c.Salience.CacheSize = 0 },
			wantErr: true,
			errMsg:  "cache_size must be at least 1",
		},
		{
			name:    "negative TTL",
			mutate:  func(c *Config) { c.Salience.CacheTTL = -1 * time.Second },
			wantErr: true,
			errMsg:  "cache_ttl",
		},
		{
			name:    "min similarity above one",
			mutate:  func(c *Config) { c.Salience.MinSimilarity = 1.1 },
			wantErr: true,
			errMsg:  "min_similarity",
		},
		{
			name:    "eval timeout zero",
			mutate:  func(c *Config) { c.Salience.EvalTimeout = 0 },
			wantErr: true,
			errMsg:  "eval_timeout must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateSalience()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateMemory(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "nil memory",
			mutate:  func(c *Config) { c.Memory = nil },
			wantErr: true,
			errMsg:  "memory configuration is nil",
		},
		{
			name:    "invalid embedding provider",
			mutate:  func(c *Config) { c.Memory.EmbeddingProvider = "word2vec" },
			wantErr: true,
			errMsg:  "invalid provider type",
		},
		{
			name: "ollama without url",
			mutate: func(c *Config) {
				c.Memory.EmbeddingProvider = EmbeddingProviderOllama
				c.Memory.EmbeddingURL = ""
			},
			wantErr: true,
			errMsg:  "embedding_url",
		},
		{
			name:    "dimensions zero",
			mutate:  func(c *Config) { c.Memory.EmbeddingDimensions = 0 },
			wantErr: true,
			errMsg:  "embedding_dimensions must be at least 1",
		},
		{
			name:    "query limit zero",
			mutate:  func(c *Config) { c.Memory.QueryLimit = 0 },
			wantErr: true,
			errMsg:  "query_limit must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateMemory()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestValidateDecision(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		setEnv  map[string]string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid defaults",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "nil decision",
			mutate:  func(c *Config) { c.Decision = nil },
			wantErr: true,
			errMsg:  "decision configuration is nil",
		},
		{
			name:    "invalid provider",
			mutate:  func(c *Config) { c.Decision.Provider = "bard" },
			wantErr: true,
			errMsg:  "invalid provider type",
		},
		{
			name: "provider none skips url and model checks",
			mutate: func(c *Config) {
				c.Decision.Provider = LLMProviderTypeNone
				c.Decision.BaseURL = ""
				c.Decision.Model = ""
			},
			wantErr: false,
		},
		{
			name:    "missing model",
			mutate:  func(c *Config) { c.Decision.Model = "" },
			wantErr: true,
			errMsg:  "model",
		},
		{
			name:    "api key env not set",
			mutate:  func(c *Config) { c.Decision.APIKeyEnv = "GLADYS_TEST_MISSING_KEY" },
			wantErr: true,
			errMsg:  "GLADYS_TEST_MISSING_KEY is not set",
		},
		{
			name:   "api key env set",
			mutate: func(c *Config) { c.Decision.APIKeyEnv = "GLADYS_TEST_PRESENT_KEY" },
			setEnv: map[string]string{
				"GLADYS_TEST_PRESENT_KEY": "sk-test",
			},
			wantErr: false,
		},
		{
			name:    "request timeout zero",
			mutate:  func(c *Config) { c.Decision.RequestTimeout = 0 },
			wantErr: true,
			errMsg:  "request_timeout must be positive",
		},
		{
			name:    "dedup similarity above one",
			mutate:  func(c *Config) { c.Decision.DedupSimilarity = 1.5 },
			wantErr: true,
			errMsg:  "dedup_similarity",
		},
		{
			name:    "min condition length zero",
			mutate:  func(c *Config) { c.Decision.MinConditionLength = 0 },
			wantErr: true,
			errMsg:  "min_condition_length must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.setEnv {
				t.Setenv(k, v)
			}
			cfg := defaultTestConfig()
			tt.mutate(cfg)
			err := NewValidator(cfg).validateDecision()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
