package agentrun

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig bounds a single run. It is immutable for the duration of the run.
type RunConfig struct {
	MaxSteps   int           `json:"max_steps"`    // tool calls the model may execute, >= 1
	Timeout    time.Duration `json:"timeout"`      // wall-clock budget for the whole run, > 0
	MaxCostUSD float64       `json:"max_cost_usd"` // spend ceiling, >= 0
	Model      string        `json:"model"`
	APIKey     string        `json:"-"`
}

// DefaultRunConfig returns conservative per-run guardrails.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		MaxSteps:   10,
		Timeout:    60 * time.Second,
		MaxCostUSD: 0.50,
	}
}

// Validate checks the config bounds.
func (c RunConfig) Validate() error {
	if c.MaxSteps < 1 {
		return fmt.Errorf("max_steps must be >= 1, got %d", c.MaxSteps)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxCostUSD < 0 {
		return fmt.Errorf("max_cost_usd must be >= 0, got %f", c.MaxCostUSD)
	}
	if c.Model == "" {
		return fmt.Errorf("model must be set")
	}
	return nil
}

// configOverride is the YAML shape for guardrail settings. Pointer fields
// distinguish "absent" from zero so agent overrides merge over defaults.
type configOverride struct {
	MaxSteps   *int     `yaml:"max_steps"`
	TimeoutMs  *int     `yaml:"timeout_ms"`
	MaxCostUSD *float64 `yaml:"max_cost_usd"`
	Model      *string  `yaml:"model"`
}

func (o configOverride) apply(c RunConfig) RunConfig {
	if o.MaxSteps != nil {
		c.MaxSteps = *o.MaxSteps
	}
	if o.TimeoutMs != nil {
		c.Timeout = time.Duration(*o.TimeoutMs) * time.Millisecond
	}
	if o.MaxCostUSD != nil {
		c.MaxCostUSD = *o.MaxCostUSD
	}
	if o.Model != nil {
		c.Model = *o.Model
	}
	return c
}

// ConfigFile holds guardrail defaults plus named per-agent overrides, loaded
// from YAML:
//
//	defaults:
//	  max_steps: 10
//	  timeout_ms: 60000
//	  max_cost_usd: 0.5
//	  model: claude-sonnet-4-5
//	agents:
//	  summarizer:
//	    max_steps: 3
//	    max_cost_usd: 0.05
type ConfigFile struct {
	Defaults configOverride            `yaml:"defaults"`
	Agents   map[string]configOverride `yaml:"agents"`
}

// LoadConfigFile reads and parses a YAML guardrail config.
func LoadConfigFile(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML guardrail config bytes.
func ParseConfig(data []byte) (*ConfigFile, error) {
	var f ConfigFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// ForAgent resolves the effective RunConfig for a named agent: package
// defaults, then the file's defaults, then the agent's own overrides.
func (f *ConfigFile) ForAgent(name string) RunConfig {
	cfg := f.Defaults.apply(DefaultRunConfig())
	if o, ok := f.Agents[name]; ok {
		cfg = o.apply(cfg)
	}
	return cfg
}
