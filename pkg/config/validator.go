package config

import (
	"fmt"
	"os"
)

// ConfigValidator validates configuration comprehensively with clear error messages
type ConfigValidator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration
func NewValidator(cfg *Config) *ConfigValidator {
	return &ConfigValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast - stops at first error)
func (v *ConfigValidator) ValidateAll() error {
	if err := v.validateServer(); err != nil {
		return fmt.Errorf("server validation failed: %w", err)
	}

	if err := v.validateOrchestrator(); err != nil {
		return fmt.Errorf("orchestrator validation failed: %w", err)
	}

	if err := v.validateSalience(); err != nil {
		return fmt.Errorf("salience validation failed: %w", err)
	}

	if err := v.validateMemory(); err != nil {
		return fmt.Errorf("memory validation failed: %w", err)
	}

	if err := v.validateDecision(); err != nil {
		return fmt.Errorf("decision validation failed: %w", err)
	}

	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}

	return nil
}

func (v *ConfigValidator) validateServer() error {
	s := v.cfg.Server
	if s == nil {
		return fmt.Errorf("server configuration is nil")
	}

	if s.Port < 1 || s.Port > 65535 {
		return NewValidationError("server", "port", fmt.Errorf("must be between 1 and 65535"))
	}
	if s.ShutdownTimeout <= 0 {
		return NewValidationError("server", "shutdown_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateOrchestrator() error {
	o := v.cfg.Orchestrator
	if o == nil {
		return fmt.Errorf("orchestrator configuration is nil")
	}

	if o.QueueCapacity < 1 {
		return NewValidationError("orchestrator", "queue_capacity", fmt.Errorf("must be at least 1"))
	}
	if o.WorkerCount < 1 || o.WorkerCount > 50 {
		return NewValidationError("orchestrator", "worker_count", fmt.Errorf("must be between 1 and 50"))
	}
	if o.PublishAckTimeout <= 0 {
		return NewValidationError("orchestrator", "publish_ack_timeout", fmt.Errorf("must be positive"))
	}
	if o.MomentInterval <= 0 {
		return NewValidationError("orchestrator", "moment_interval", fmt.Errorf("must be positive"))
	}
	if o.HighSalienceThreshold <= 0 || o.HighSalienceThreshold > 1 {
		return NewValidationError("orchestrator", "high_salience_threshold", fmt.Errorf("must be in (0, 1]"))
	}
	if o.EmergencyThreatThreshold <= 0 || o.EmergencyThreatThreshold > 1 {
		return NewValidationError("orchestrator", "emergency_threat_threshold", fmt.Errorf("must be in (0, 1]"))
	}
	if o.EmergencySalienceThreshold <= 0 || o.EmergencySalienceThreshold > 1 {
		return NewValidationError("orchestrator", "emergency_salience_threshold", fmt.Errorf("must be in (0, 1]"))
	}
	if o.EmergencySalienceThreshold < o.HighSalienceThreshold {
		return NewValidationError("orchestrator", "emergency_salience_threshold", fmt.Errorf("must be at least high_salience_threshold"))
	}
	if o.EmergencyConfidenceThreshold <= 0 || o.EmergencyConfidenceThreshold > 1 {
		return NewValidationError("orchestrator", "emergency_confidence_threshold", fmt.Errorf("must be in (0, 1]"))
	}
	if o.FallbackNovelty < 0 || o.FallbackNovelty > 1 {
		return NewValidationError("orchestrator", "fallback_novelty", fmt.Errorf("must be in [0, 1]"))
	}
	if o.HeartbeatInterval <= 0 {
		return NewValidationError("orchestrator", "heartbeat_interval", fmt.Errorf("must be positive"))
	}
	if o.HeartbeatTimeout <= o.HeartbeatInterval {
		return NewValidationError("orchestrator", "heartbeat_timeout", fmt.Errorf("must be greater than heartbeat_interval"))
	}
	if o.HealthScanInterval <= 0 {
		return NewValidationError("orchestrator", "health_scan_interval", fmt.Errorf("must be positive"))
	}
	if o.DeadRetention <= 0 {
		return NewValidationError("orchestrator", "dead_retention", fmt.Errorf("must be positive"))
	}
	if o.OutcomeDeadline <= 0 {
		return NewValidationError("orchestrator", "outcome_deadline", fmt.Errorf("must be positive"))
	}
	if o.OutcomeScanInterval <= 0 || o.OutcomeScanInterval >= o.OutcomeDeadline {
		return NewValidationError("orchestrator", "outcome_scan_interval", fmt.Errorf("must be positive and less than outcome_deadline"))
	}
	for i, p := range o.OutcomePatterns {
		if p.TriggerPattern == "" {
			return NewValidationError("orchestrator", "outcome_patterns", fmt.Errorf("pattern %d: trigger_pattern is empty", i))
		}
		if p.OutcomePattern == "" {
			return NewValidationError("orchestrator", "outcome_patterns", fmt.Errorf("pattern %d: outcome_pattern is empty", i))
		}
		if p.Timeout < 0 {
			return NewValidationError("orchestrator", "outcome_patterns", fmt.Errorf("pattern %d: timeout must not be negative", i))
		}
	}
	if o.GracefulShutdownTimeout <= 0 {
		return NewValidationError("orchestrator", "graceful_shutdown_timeout", fmt.Errorf("must be positive"))
	}

	return v.validateLearning(o.Learning)
}

func (v *ConfigValidator) validateLearning(l *LearningConfig) error {
	if l == nil {
		return fmt.Errorf("learning configuration is nil")
	}

	if !l.Strategy.IsValid() {
		return NewValidationError("learning", "strategy", fmt.Errorf("invalid strategy: %s", l.Strategy))
	}
	if l.UndoWindow <= 0 {
		return NewValidationError("learning", "undo_window", fmt.Errorf("must be positive"))
	}
	if l.IgnoredThreshold < 1 {
		return NewValidationError("learning", "ignored_threshold", fmt.Errorf("must be at least 1"))
	}
	if l.ImplicitWeight <= 0 || l.ImplicitWeight > 1 {
		return NewValidationError("learning", "implicit_weight", fmt.Errorf("must be in (0, 1]"))
	}
	if l.ExplicitWeight <= 0 || l.ExplicitWeight > 1 {
		return NewValidationError("learning", "explicit_weight", fmt.Errorf("must be in (0, 1]"))
	}

	return nil
}

func (v *ConfigValidator) validateSalience() error {
	s := v.cfg.Salience
	if s == nil {
		return fmt.Errorf("salience configuration is nil")
	}

	if s.CacheSize < 1 {
		return NewValidationError("salience", "cache_size", fmt.Errorf("must be at least 1"))
	}
	if s.CacheTTL < 0 {
		return NewValidationError("salience", "cache_ttl", fmt.Errorf("must be non-negative (0 disables expiry)"))
	}
	if s.MinSimilarity < 0 || s.MinSimilarity > 1 {
		return NewValidationError("salience", "min_similarity", fmt.Errorf("must be in [0, 1]"))
	}
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return NewValidationError("salience", "min_confidence", fmt.Errorf("must be in [0, 1]"))
	}
	if s.NoveltyThreshold < 0 || s.NoveltyThreshold > 1 {
		return NewValidationError("salience", "novelty_threshold", fmt.Errorf("must be in [0, 1]"))
	}
	if s.NoveltyWindow < 0 {
		return NewValidationError("salience", "novelty_window", fmt.Errorf("must be non-negative"))
	}
	if s.BaselineNovelty < 0 || s.BaselineNovelty > 1 {
		return NewValidationError("salience", "baseline_novelty", fmt.Errorf("must be in [0, 1]"))
	}
	if s.UnmatchedNoveltyBoost < 0 || s.UnmatchedNoveltyBoost > 1 {
		return NewValidationError("salience", "unmatched_novelty_boost", fmt.Errorf("must be in [0, 1]"))
	}
	if s.EvalTimeout <= 0 {
		return NewValidationError("salience", "eval_timeout", fmt.Errorf("must be positive"))
	}

	return nil
}

func (v *ConfigValidator) validateMemory() error {
	m := v.cfg.Memory
	if m == nil {
		return fmt.Errorf("memory configuration is nil")
	}

	if !m.EmbeddingProvider.IsValid() {
		return NewValidationError("memory", "embedding_provider", fmt.Errorf("invalid provider type: %s", m.EmbeddingProvider))
	}
	if m.EmbeddingProvider == EmbeddingProviderOllama {
		if m.EmbeddingURL == "" {
			return NewValidationError("memory", "embedding_url", fmt.Errorf("required for ollama provider"))
		}
		if m.EmbeddingModel == "" {
			return NewValidationError("memory", "embedding_model", fmt.Errorf("required for ollama provider"))
		}
	}
	if m.EmbeddingDimensions < 1 {
		return NewValidationError("memory", "embedding_dimensions", fmt.Errorf("must be at least 1"))
	}
	if m.QueryLimit < 1 {
		return NewValidationError("memory", "query_limit", fmt.Errorf("must be at least 1"))
	}
	if m.ContextMaxHops < 0 {
		return NewValidationError("memory", "context_max_hops", fmt.Errorf("must be non-negative"))
	}

	return nil
}

func (v *ConfigValidator) validateDecision() error {
	d := v.cfg.Decision
	if d == nil {
		return fmt.Errorf("decision configuration is nil")
	}

	if !d.Provider.IsValid() {
		return NewValidationError("decision", "provider", fmt.Errorf("invalid provider type: %s", d.Provider))
	}
	if d.Provider != LLMProviderTypeNone {
		if d.BaseURL == "" {
			return NewValidationError("decision", "base_url", fmt.Errorf("required for %s provider", d.Provider))
		}
		if d.Model == "" {
			return NewValidationError("decision", "model", fmt.Errorf("required for %s provider", d.Provider))
		}
	}

	// Validate API key environment variable is set (if specified)
	if d.APIKeyEnv != "" {
		if value := os.Getenv(d.APIKeyEnv); value == "" {
			return NewValidationError("decision", "api_key_env", fmt.Errorf("environment variable %s is not set", d.APIKeyEnv))
		}
	}

	if d.RequestTimeout <= 0 {
		return NewValidationError("decision", "request_timeout", fmt.Errorf("must be positive"))
	}
	if d.TraceRetention <= 0 {
		return NewValidationError("decision", "trace_retention", fmt.Errorf("must be positive"))
	}
	if d.TraceCleanupThreshold < 1 {
		return NewValidationError("decision", "trace_cleanup_threshold", fmt.Errorf("must be at least 1"))
	}
	if d.ExtractionSimilarityThreshold < 0 || d.ExtractionSimilarityThreshold > 1 {
		return NewValidationError("decision", "extraction_similarity_threshold", fmt.Errorf("must be in [0, 1]"))
	}
	if d.DedupSimilarity < 0 || d.DedupSimilarity > 1 {
		return NewValidationError("decision", "dedup_similarity", fmt.Errorf("must be in [0, 1]"))
	}
	if d.MinConditionLength < 1 {
		return NewValidationError("decision", "min_condition_length", fmt.Errorf("must be at least 1"))
	}

	return nil
}

func (v *ConfigValidator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		// Retention is optional; the sweeper falls back to defaults.
		return nil
	}

	if r.EpisodeRetention < 0 {
		return NewValidationError("retention", "episode_retention", fmt.Errorf("must not be negative"))
	}
	if r.EventTTL < 0 {
		return NewValidationError("retention", "event_ttl", fmt.Errorf("must not be negative"))
	}
	if r.SweepInterval <= 0 {
		return NewValidationError("retention", "sweep_interval", fmt.Errorf("must be positive"))
	}

	return nil
}
