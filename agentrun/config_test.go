package agentrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRunConfig(t *testing.T) {
	cfg := DefaultRunConfig()
	assert.Equal(t, 10, cfg.MaxSteps)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 0.50, cfg.MaxCostUSD)
}

func TestRunConfigValidate(t *testing.T) {
	valid := RunConfig{MaxSteps: 5, Timeout: time.Second, MaxCostUSD: 0.1, Model: "m"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*RunConfig)
	}{
		{"zero max steps", func(c *RunConfig) { c.MaxSteps = 0 }},
		{"negative max steps", func(c *RunConfig) { c.MaxSteps = -1 }},
		{"zero timeout", func(c *RunConfig) { c.Timeout = 0 }},
		{"negative timeout", func(c *RunConfig) { c.Timeout = -time.Second }},
		{"negative budget", func(c *RunConfig) { c.MaxCostUSD = -0.01 }},
		{"missing model", func(c *RunConfig) { c.Model = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRunConfigValidateZeroBudget(t *testing.T) {
	// A zero budget is allowed; enforcement happens at settlement.
	cfg := RunConfig{MaxSteps: 1, Timeout: time.Second, MaxCostUSD: 0, Model: "m"}
	assert.NoError(t, cfg.Validate())
}

func TestParseConfig(t *testing.T) {
	data := []byte(`
defaults:
  max_steps: 20
  timeout_ms: 120000
  max_cost_usd: 1.5
  model: claude-sonnet-4-5
agents:
  summarizer:
    max_steps: 3
    max_cost_usd: 0.05
`)
	f, err := ParseConfig(data)
	require.NoError(t, err)

	cfg := f.ForAgent("summarizer")
	assert.Equal(t, 3, cfg.MaxSteps)
	assert.Equal(t, 120*time.Second, cfg.Timeout)
	assert.Equal(t, 0.05, cfg.MaxCostUSD)
	assert.Equal(t, "claude-sonnet-4-5", cfg.Model)
}

func TestParseConfigUnknownAgent(t *testing.T) {
	data := []byte(`
defaults:
  max_steps: 20
  model: gpt-5.2
`)
	f, err := ParseConfig(data)
	require.NoError(t, err)

	// Unknown agents get the file defaults merged over package defaults.
	cfg := f.ForAgent("nope")
	assert.Equal(t, 20, cfg.MaxSteps)
	assert.Equal(t, 60*time.Second, cfg.Timeout)
	assert.Equal(t, 0.50, cfg.MaxCostUSD)
	assert.Equal(t, "gpt-5.2", cfg.Model)
}

func TestParseConfigEmpty(t *testing.T) {
	f, err := ParseConfig([]byte(""))
	require.NoError(t, err)

	cfg := f.ForAgent("anything")
	assert.Equal(t, DefaultRunConfig().MaxSteps, cfg.MaxSteps)
	assert.Equal(t, DefaultRunConfig().Timeout, cfg.Timeout)
}

func TestParseConfigInvalid(t *testing.T) {
	_, err := ParseConfig([]byte("defaults: [not, a, map]"))
	assert.Error(t, err)
}

func TestParseConfigZeroOverride(t *testing.T) {
	// An explicit zero is distinct from an absent key.
	data := []byte(`
agents:
  free:
    max_cost_usd: 0
`)
	f, err := ParseConfig(data)
	require.NoError(t, err)

	cfg := f.ForAgent("free")
	assert.Zero(t, cfg.MaxCostUSD)
	assert.Equal(t, 10, cfg.MaxSteps)
}

func TestLoadConfigFileMissing(t *testing.T) {
	_, err := LoadConfigFile("/nonexistent/guardrails.yaml")
	assert.Error(t, err)
}
