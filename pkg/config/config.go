package config

// Config is the umbrella configuration object for all subsystems.
// This is the primary object returned by Initialize() and used throughout
// the application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	// Server holds HTTP/WebSocket listener settings
	Server *ServerConfig

	// Orchestrator holds queue, routing, registry, and learning settings
	Orchestrator *OrchestratorConfig

	// Salience holds gateway and heuristic cache settings
	Salience *SalienceConfig

	// Memory holds store and embedding settings
	Memory *MemoryConfig

	// Decision holds executive LLM and extraction settings
	Decision *DecisionConfig

	// Retention holds data retention sweeper settings
	Retention *RetentionConfig
}

// Initialize is defined in loader.go

// Stats contains summary values about loaded configuration, for logging
type Stats struct {
	Port              int
	QueueCapacity     int
	Workers           int
	CacheSize         int
	EmbeddingProvider EmbeddingProviderType
	LLMProvider       LLMProviderType
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Server != nil {
		s.Port = c.Server.Port
	}
	if c.Orchestrator != nil {
		s.QueueCapacity = c.Orchestrator.QueueCapacity
		s.Workers = c.Orchestrator.WorkerCount
	}
	if c.Salience != nil {
		s.CacheSize = c.Salience.CacheSize
	}
	if c.Memory != nil {
		s.EmbeddingProvider = c.Memory.EmbeddingProvider
	}
	if c.Decision != nil {
		s.LLMProvider = c.Decision.Provider
	}
	return s
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
