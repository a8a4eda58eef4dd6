// Package config loads and validates fieldpilot configuration.
// Config lives at .fieldpilot/config.json under the workspace root and
// can be overridden per-setting through environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the root configuration object.
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Embedding EmbeddingConfig `json:"embedding"`
	Limits    LimitsConfig    `json:"limits"`
	Logging   LoggingConfig   `json:"logging"`
}

// LoggingConfig mirrors the logging package's expectations.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories,omitempty"`
	Level      string          `json:"level,omitempty"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Limits:    DefaultLimitsConfig(),
		Logging:   LoggingConfig{Level: "info"},
	}
}

// FindWorkspaceRoot locates the directory holding .fieldpilot, walking up
// from the working directory. Falls back to the working directory itself.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for d := dir; ; {
		if _, err := os.Stat(filepath.Join(d, ".fieldpilot")); err == nil {
			return d, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir, nil
		}
		d = parent
	}
}

// Load reads config.json from the workspace, applies defaults for missing
// sections, then applies environment overrides. A missing file is not an
// error: defaults plus env vars are a valid configuration.
func Load(workspace string) (Config, error) {
	cfg := Default()

	path := filepath.Join(workspace, ".fieldpilot", "config.json")
	data, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides lets environment variables win over file values.
// Secrets should come from the environment, not the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FIELDPILOT_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("FIELDPILOT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("FIELDPILOT_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("FIELDPILOT_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if v := os.Getenv("FIELDPILOT_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("FIELDPILOT_DEBUG"); v == "true" || v == "1" {
		c.Logging.DebugMode = true
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm temperature must be in [0,2], got %v", c.LLM.Temperature)
	}
	return nil
}

// Save writes the config back to the workspace, creating .fieldpilot
// if needed.
func (c *Config) Save(workspace string) error {
	dir := filepath.Join(workspace, ".fieldpilot")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}
