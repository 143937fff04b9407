package config

import "time"

// OrchestratorConfig contains event queue, worker pool, and component
// registry configuration. These values control how events are admitted,
// prioritized, and routed, and how sensor liveness is tracked.
type OrchestratorConfig struct {
	// QueueCapacity is the bounded priority queue size. Publishes beyond
	// this are rejected synchronously with reason "queue_full".
	QueueCapacity int `yaml:"queue_capacity"`

	// WorkerCount is the number of routing worker goroutines draining
	// the priority queue.
	WorkerCount int `yaml:"worker_count"`

	// PublishAckTimeout is how long PublishEvent waits for the routing
	// worker to finish before returning a queued-only ack.
	PublishAckTimeout time.Duration `yaml:"publish_ack_timeout"`

	// MomentInterval is the batching window for low-salience events.
	// Events below HighSalienceThreshold accumulate into a moment that
	// is flushed to the decision layer on this interval.
	MomentInterval time.Duration `yaml:"moment_interval"`

	// HighSalienceThreshold routes events at or above this aggregate
	// salience to the decision layer immediately.
	HighSalienceThreshold float64 `yaml:"high_salience_threshold"`

	// EmergencyThreatThreshold short-circuits the queue entirely: events
	// arriving with a sensor-supplied threat at or above it are routed
	// inline on the publish path instead of being enqueued.
	EmergencyThreatThreshold float64 `yaml:"emergency_threat_threshold"`

	// EmergencySalienceThreshold gates the heuristic fast path: an event
	// whose aggregate salience reaches it may be answered straight from a
	// matched heuristic, skipping the LLM.
	EmergencySalienceThreshold float64 `yaml:"emergency_salience_threshold"`

	// EmergencyConfidenceThreshold is the matched-heuristic confidence the
	// fast path additionally requires. Below it the match only becomes a
	// suggestion for the LLM.
	EmergencyConfidenceThreshold float64 `yaml:"emergency_confidence_threshold"`

	// FallbackNovelty is the novelty assigned to events when no salience
	// gateway is reachable. All other dimensions stay zero, so fallback
	// events never look like threats; set it at or above
	// HighSalienceThreshold to route unevaluated events immediately.
	FallbackNovelty float64 `yaml:"fallback_novelty"`

	// HeartbeatInterval is the cadence sensors are told to report on.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// HeartbeatTimeout is how long a component can go without a heartbeat
	// before it is marked DEAD.
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"`

	// HealthScanInterval is how often the registry sweeps for dead components.
	HealthScanInterval time.Duration `yaml:"health_scan_interval"`

	// DeadRetention is how long a DEAD component stays visible in the
	// registry before it is removed.
	DeadRetention time.Duration `yaml:"dead_retention"`

	// OutcomeDeadline is how long a heuristic fire may stay unresolved
	// before the watcher finalizes it as unknown.
	OutcomeDeadline time.Duration `yaml:"outcome_deadline"`

	// OutcomeScanInterval is how often the outcome watcher checks for
	// expired fires.
	OutcomeScanInterval time.Duration `yaml:"outcome_scan_interval"`

	// OutcomePatterns declares the expected real-world consequences of
	// heuristic fires. Empty disables pattern-based outcome watching.
	OutcomePatterns []OutcomePattern `yaml:"outcome_patterns,omitempty"`

	// GracefulShutdownTimeout is the max time to wait for in-flight
	// events to drain during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// Learning groups the implicit-feedback coordination knobs.
	Learning *LearningConfig `yaml:"learning"`
}

// OutcomePattern pairs a heuristic trigger with the event it should cause.
// When a fired heuristic's condition text contains TriggerPattern, the
// orchestrator watches for a later event whose raw text contains
// OutcomePattern; seeing it resolves the fire.
type OutcomePattern struct {
	// TriggerPattern is substring-matched case-insensitively against the
	// fired heuristic's condition text.
	TriggerPattern string `yaml:"trigger_pattern"`

	// OutcomePattern is substring-matched case-insensitively against later
	// event raw text.
	OutcomePattern string `yaml:"outcome_pattern"`

	// Source, when set, restricts outcome matching to events from exactly
	// that source.
	Source string `yaml:"source,omitempty"`

	// Timeout overrides the global outcome_deadline for this pattern.
	// Zero means use the default.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// IsSuccess says whether seeing the outcome confirms the heuristic.
	// False means the outcome is evidence the action was wrong.
	IsSuccess bool `yaml:"is_success"`
}

// LearningConfig controls how the orchestrator converts user behavior
// into feedback events without an explicit feedback call.
type LearningConfig struct {
	// Strategy selects the confidence-update model. Only bayesian is
	// fully supported; frozen disables updates.
	Strategy LearningStrategy `yaml:"strategy"`

	// UndoWindow is how long after a fast-path response an undo-like user
	// event counts as explicit negative feedback for the fired heuristic.
	UndoWindow time.Duration `yaml:"undo_window"`

	// UndoKeywords are matched case-insensitively against user event text
	// inside the undo window.
	UndoKeywords []string `yaml:"undo_keywords"`

	// IgnoredThreshold is how many consecutive unreacted responses a
	// heuristic accrues before one implicit negative is emitted.
	IgnoredThreshold int `yaml:"ignored_threshold"`

	// ImplicitWeight scales alpha/beta increments for outcome-derived
	// feedback (success, failure, ignored).
	ImplicitWeight float64 `yaml:"implicit_weight"`

	// ExplicitWeight scales alpha/beta increments for user-initiated
	// feedback (undo detection, direct feedback without a weight).
	ExplicitWeight float64 `yaml:"explicit_weight"`
}

// DefaultOrchestratorConfig returns the built-in orchestrator defaults.
func DefaultOrchestratorConfig() *OrchestratorConfig {
	return &OrchestratorConfig{
		QueueCapacity:                1000,
		WorkerCount:                  4,
		PublishAckTimeout:            100 * time.Millisecond,
		MomentInterval:               100 * time.Millisecond,
		HighSalienceThreshold:        0.7,
		EmergencyThreatThreshold:     0.95,
		EmergencySalienceThreshold:   0.95,
		EmergencyConfidenceThreshold: 0.9,
		FallbackNovelty:              0.8,
		HeartbeatInterval:            5 * time.Second,
		HeartbeatTimeout:             30 * time.Second,
		HealthScanInterval:           10 * time.Second,
		DeadRetention:                2 * time.Minute,
		OutcomeDeadline:              60 * time.Second,
		OutcomeScanInterval:          2 * time.Second,
		GracefulShutdownTimeout:      30 * time.Second,
		Learning:                     DefaultLearningConfig(),
	}
}

// DefaultLearningConfig returns the built-in learning coordination defaults.
func DefaultLearningConfig() *LearningConfig {
	return &LearningConfig{
		Strategy:         LearningStrategyBayesian,
		UndoWindow:       30 * time.Second,
		UndoKeywords:     []string{"undo", "revert", "cancel", "rollback", "nevermind", "never mind"},
		IgnoredThreshold: 3,
		ImplicitWeight:   1.0,
		ExplicitWeight:   0.8,
	}
}
