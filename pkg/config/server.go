package config

import "time"

// ServerConfig contains HTTP/WebSocket server configuration.
type ServerConfig struct {
	// Port the orchestrator API listens on.
	Port int `yaml:"port"`

	// Host interface to bind. Empty binds all interfaces.
	Host string `yaml:"host"`

	// AllowedWSOrigins are additional origin patterns accepted for
	// WebSocket upgrades beyond same-host defaults.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`

	// ShutdownTimeout is the max time to wait for open connections to
	// drain when the server stops.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            50050,
		ShutdownTimeout: 10 * time.Second,
	}
}
