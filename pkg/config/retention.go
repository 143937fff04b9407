package config

import "time"

// RetentionConfig contains data retention sweeper configuration.
type RetentionConfig struct {
	// EpisodeRetention is how long episodes stay queryable before the
	// sweeper flags them archived. Zero disables episode archiving.
	EpisodeRetention time.Duration `yaml:"episode_retention"`

	// EventTTL is how long delivered stream events stay available for
	// reconnect catchup before being pruned. Zero disables pruning.
	EventTTL time.Duration `yaml:"event_ttl"`

	// SweepInterval is the cadence of retention sweeps.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		EpisodeRetention: 90 * 24 * time.Hour,
		EventTTL:         24 * time.Hour,
		SweepInterval:    time.Hour,
	}
}
