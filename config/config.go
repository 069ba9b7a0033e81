// Package config loads space configuration: defaults, merged with an optional
// YAML file, overridden by WORLDMESH_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config controls a space's ceilings, budgets, and collaborators.
type Config struct {
	// SpaceID names the space, used as the persistence key.
	SpaceID string `yaml:"spaceId"`

	// StabilizationCeiling caps stabilization passes per frame.
	StabilizationCeiling int `yaml:"stabilizationCeiling"`

	// FrameBudget caps frames per external trigger, counting reaction and
	// maintenance recursion.
	FrameBudget int `yaml:"frameBudget"`

	// RateLimit throttles events per source in the pre-filter; zero disables
	// the shipped rate-limit filter.
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	// SnapshotPath is the SQLite snapshot database; empty selects the
	// in-memory store.
	SnapshotPath string `yaml:"snapshotPath"`

	// Model selects the provider backing agent turns.
	Model ModelConfig `yaml:"model"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"logLevel"`
}

// RateLimitConfig is a per-source token bucket.
type RateLimitConfig struct {
	EventsPerSecond float64       `yaml:"eventsPerSecond"`
	Burst           int           `yaml:"burst"`
	IdleTTL         time.Duration `yaml:"idleTtl"`
}

// ModelConfig selects and tunes the model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // anthropic | openai | mock
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"maxTokens"`
}

// Default returns the configuration used when no file or overrides apply.
func Default() Config {
	return Config{
		SpaceID:              "default",
		StabilizationCeiling: 16,
		FrameBudget:          32,
		RateLimit: RateLimitConfig{
			EventsPerSecond: 10,
			Burst:           20,
			IdleTTL:         5 * time.Minute,
		},
		Model: ModelConfig{
			Provider:  "mock",
			MaxTokens: 4096,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (if any), merges it over the defaults, and
// applies environment overrides. An empty path tries ./worldmesh.yaml and
// ./configs/worldmesh.yaml before falling back to defaults; a missing file is
// not an error, a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	candidates := []string{path}
	if path == "" {
		candidates = []string{"worldmesh.yaml", "configs/worldmesh.yaml"}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			if path != "" {
				return cfg, fmt.Errorf("read config %s: %w", candidate, err)
			}
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", candidate, err)
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func merge(dst *Config, src Config) {
	if src.SpaceID != "" {
		dst.SpaceID = src.SpaceID
	}
	if src.StabilizationCeiling != 0 {
		dst.StabilizationCeiling = src.StabilizationCeiling
	}
	if src.FrameBudget != 0 {
		dst.FrameBudget = src.FrameBudget
	}
	if src.RateLimit.EventsPerSecond != 0 {
		dst.RateLimit.EventsPerSecond = src.RateLimit.EventsPerSecond
	}
	if src.RateLimit.Burst != 0 {
		dst.RateLimit.Burst = src.RateLimit.Burst
	}
	if src.RateLimit.IdleTTL != 0 {
		dst.RateLimit.IdleTTL = src.RateLimit.IdleTTL
	}
	if src.SnapshotPath != "" {
		dst.SnapshotPath = src.SnapshotPath
	}
	if src.Model.Provider != "" {
		dst.Model.Provider = src.Model.Provider
	}
	if src.Model.Name != "" {
		dst.Model.Name = src.Model.Name
	}
	if src.Model.Temperature != 0 {
		dst.Model.Temperature = src.Model.Temperature
	}
	if src.Model.MaxTokens != 0 {
		dst.Model.MaxTokens = src.Model.MaxTokens
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_SPACE_ID")); v != "" {
		cfg.SpaceID = v
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_SNAPSHOT_PATH")); v != "" {
		cfg.SnapshotPath = v
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_MODEL_PROVIDER")); v != "" {
		cfg.Model.Provider = v
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_MODEL_NAME")); v != "" {
		cfg.Model.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_FRAME_BUDGET")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FrameBudget = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("WORLDMESH_STABILIZATION_CEILING")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.StabilizationCeiling = n
		}
	}
}
