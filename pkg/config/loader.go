package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// GladysYAMLConfig represents the complete gladys.yaml file structure.
// Every section is optional; omitted sections take built-in defaults.
type GladysYAMLConfig struct {
	Server       *ServerConfig       `yaml:"server"`
	Orchestrator *OrchestratorConfig `yaml:"orchestrator"`
	Salience     *SalienceConfig     `yaml:"salience"`
	Memory       *MemoryConfig       `yaml:"memory"`
	Decision     *DecisionConfig     `yaml:"decision"`
	Retention    *RetentionConfig    `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load gladys.yaml from configDir (optional; defaults apply when absent)
//  2. Expand environment variables in the YAML content
//  3. Merge user-provided sections over built-in defaults
//  4. Apply environment variable overrides
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized successfully",
		"port", stats.Port,
		"queue_capacity", stats.QueueCapacity,
		"workers", stats.Workers,
		"cache_size", stats.CacheSize,
		"embedding_provider", stats.EmbeddingProvider,
		"llm_provider", stats.LLMProvider)

	return cfg, nil
}

// load is the internal loader (not exported)
func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{
		configDir: configDir,
	}

	gladysConfig, err := loader.loadGladysYAML()
	if err != nil {
		return nil, NewLoadError("gladys.yaml", err)
	}

	// Resolve each section: start with defaults, then merge user config on
	// top so unset fields keep their defaults (non-zero values override).
	serverCfg, err := resolveServerConfig(gladysConfig.Server)
	if err != nil {
		return nil, err
	}
	orchestratorCfg, err := resolveOrchestratorConfig(gladysConfig.Orchestrator)
	if err != nil {
		return nil, err
	}
	salienceCfg, err := resolveSalienceConfig(gladysConfig.Salience)
	if err != nil {
		return nil, err
	}
	memoryCfg, err := resolveMemoryConfig(gladysConfig.Memory)
	if err != nil {
		return nil, err
	}
	decisionCfg, err := resolveDecisionConfig(gladysConfig.Decision)
	if err != nil {
		return nil, err
	}
	retentionCfg, err := resolveRetentionConfig(gladysConfig.Retention)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		configDir:    configDir,
		Server:       serverCfg,
		Orchestrator: orchestratorCfg,
		Salience:     salienceCfg,
		Memory:       memoryCfg,
		Decision:     decisionCfg,
		Retention:    retentionCfg,
	}

	// Environment variables override both defaults and YAML. Applied last
	// so an explicit env value (including zero) always wins.
	applyEnvOverrides(cfg)

	return cfg, nil
}

// validate performs comprehensive validation on loaded configuration
func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax.
	// Note: ExpandEnv passes through original data on parse/execution errors,
	// allowing YAML parser to handle the content (or fail with clearer error message)
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

// loadGladysYAML reads gladys.yaml if present. A missing file is not an
// error: the whole file is optional and defaults plus env vars suffice.
func (l *configLoader) loadGladysYAML() (*GladysYAMLConfig, error) {
	var config GladysYAMLConfig

	if err := l.loadYAML("gladys.yaml", &config); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			slog.Info("No gladys.yaml found, using built-in defaults",
				"config_dir", l.configDir)
			return &GladysYAMLConfig{}, nil
		}
		return nil, err
	}

	return &config, nil
}

func resolveServerConfig(user *ServerConfig) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge server config: %w", err)
		}
	}
	return cfg, nil
}

func resolveOrchestratorConfig(user *OrchestratorConfig) (*OrchestratorConfig, error) {
	cfg := DefaultOrchestratorConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge orchestrator config: %w", err)
		}
	}
	if cfg.Learning == nil {
		cfg.Learning = DefaultLearningConfig()
	}
	return cfg, nil
}

func resolveSalienceConfig(user *SalienceConfig) (*SalienceConfig, error) {
	cfg := DefaultSalienceConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge salience config: %w", err)
		}
	}
	return cfg, nil
}

func resolveMemoryConfig(user *MemoryConfig) (*MemoryConfig, error) {
	cfg := DefaultMemoryConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge memory config: %w", err)
		}
	}
	return cfg, nil
}

func resolveDecisionConfig(user *DecisionConfig) (*DecisionConfig, error) {
	cfg := DefaultDecisionConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge decision config: %w", err)
		}
	}
	return cfg, nil
}

func resolveRetentionConfig(user *RetentionConfig) (*RetentionConfig, error) {
	cfg := DefaultRetentionConfig()
	if user != nil {
		if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}
	return cfg, nil
}

// applyEnvOverrides applies the documented environment variables on top of
// the resolved configuration. Unparseable values are logged at WARN and
// skipped; validation later catches out-of-range results.
func applyEnvOverrides(cfg *Config) {
	if v, ok := envInt("ORCHESTRATOR_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envString("SALIENCE_ADDRESS"); ok {
		cfg.Salience.Address = v
	}
	if v, ok := envString("EXECUTIVE_ADDRESS"); ok {
		cfg.Decision.Address = v
	}
	if v, ok := envString("MEMORY_ADDRESS"); ok {
		cfg.Memory.Address = v
	}
	// TTL in milliseconds; an explicit 0 disables expiry.
	if v, ok := envInt("CACHE_HEURISTIC_TTL_MS"); ok {
		cfg.Salience.CacheTTL = time.Duration(v) * time.Millisecond
	}
	if v, ok := envFloat("SALIENCE_MIN_HEURISTIC_SIMILARITY"); ok {
		cfg.Salience.MinSimilarity = v
	}
	if v, ok := envFloat("SALIENCE_MIN_HEURISTIC_CONFIDENCE"); ok {
		cfg.Salience.MinConfidence = v
	}
	if v, ok := envFloat("CACHE_NOVELTY_THRESHOLD"); ok {
		cfg.Salience.NoveltyThreshold = v
	}
}

func envString(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring unparseable integer environment variable",
			"name", name,
			"value", raw,
			"error", err)
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("Ignoring unparseable float environment variable",
			"name", name,
			"value", raw,
			"error", err)
		return 0, false
	}
	return v, true
}
