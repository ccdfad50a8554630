// Package config loads and validates the orchestrator's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// OrchestratorSection controls the scheduler's concurrency and shutdown behavior.
type OrchestratorSection struct {
	MaxAgents      int    `yaml:"maxAgents"`
	AgentGraceMs   int    `yaml:"agentGraceMs"`
	ShutdownTimeMs int    `yaml:"shutdownTimeoutMs"`
	MemoryPath     string `yaml:"memoryPath"`
}

// RateLimitSection configures both rate-limiter windows and the retry policy
// shared between them.
type RateLimitSection struct {
	PerMinuteMaxRequests int `yaml:"perMinuteMaxRequests"`
	PerDayMaxRequests    int `yaml:"perDayMaxRequests"`
	MaxRetries           int `yaml:"maxRetries"`
	RetryDelayMs         int `yaml:"retryDelayMs"`
}

// MemorySection configures the memory store's retention and flush behavior.
type MemorySection struct {
	SoftMaxEntries int `yaml:"softMaxEntries"`
	MaxAgeMs       int `yaml:"maxAgeMs"`
	AutoFlushMs    int `yaml:"autoFlushMs"`
	ContextLimit   int `yaml:"contextLimit"`
	SummaryChars   int `yaml:"summaryChars"`
}

// ModelSection names the backend and credentials for one LLM vendor.
type ModelSection struct {
	Backend string `yaml:"backend"` // anthropic | openai | ollama | google
	APIKey  string `yaml:"apiKey"`
	Model   string `yaml:"model"`
	HostURL string `yaml:"hostUrl,omitempty"` // ollama only
}

// Config is the root of the orchestrator's YAML configuration file.
type Config struct {
	Orchestrator OrchestratorSection `yaml:"orchestrator"`
	RateLimit    RateLimitSection    `yaml:"rateLimit"`
	Memory       MemorySection       `yaml:"memory"`
	Models       []ModelSection      `yaml:"models"`
}

// Default returns the spec's documented defaults (spec.md §7 rate-limit and
// memory defaults) with an empty model list.
func Default() Config {
	return Config{
		Orchestrator: OrchestratorSection{
			MaxAgents:      10,
			AgentGraceMs:   300_000,
			ShutdownTimeMs: 30_000,
			MemoryPath:     "memory.json",
		},
		RateLimit: RateLimitSection{
			PerMinuteMaxRequests: 60,
			PerDayMaxRequests:    1000,
			MaxRetries:           3,
			RetryDelayMs:         1000,
		},
		Memory: MemorySection{
			SoftMaxEntries: 1000,
			MaxAgeMs:       7 * 24 * 60 * 60 * 1000,
			AutoFlushMs:    5000,
			ContextLimit:   10,
			SummaryChars:   200,
		},
	}
}

// Load reads and parses the YAML file at path, filling unset fields from
// Default. It returns an error if the file cannot be read or parsed, or if
// the resulting configuration fails Validate.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every section carries semantically valid values.
func (c Config) Validate() error {
	if c.Orchestrator.MaxAgents <= 0 {
		return fmt.Errorf("orchestrator.maxAgents must be positive, got %d", c.Orchestrator.MaxAgents)
	}
	if c.Orchestrator.MemoryPath == "" {
		return fmt.Errorf("orchestrator.memoryPath must not be empty")
	}
	if c.RateLimit.PerMinuteMaxRequests <= 0 {
		return fmt.Errorf("rateLimit.perMinuteMaxRequests must be positive, got %d", c.RateLimit.PerMinuteMaxRequests)
	}
	if c.RateLimit.PerDayMaxRequests <= 0 {
		return fmt.Errorf("rateLimit.perDayMaxRequests must be positive, got %d", c.RateLimit.PerDayMaxRequests)
	}
	if c.Memory.SoftMaxEntries <= 0 {
		return fmt.Errorf("memory.softMaxEntries must be positive, got %d", c.Memory.SoftMaxEntries)
	}
	for i, m := range c.Models {
		switch m.Backend {
		case "anthropic", "openai", "ollama", "google":
		default:
			return fmt.Errorf("models[%d]: unrecognized backend %q", i, m.Backend)
		}
	}
	return nil
}

// AgentGrace returns the configured agent shutdown grace window as a Duration.
func (c Config) AgentGrace() time.Duration {
	return time.Duration(c.Orchestrator.AgentGraceMs) * time.Millisecond
}

// ShutdownTimeout returns the configured stop() deadline as a Duration.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Orchestrator.ShutdownTimeMs) * time.Millisecond
}
