package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 100, cfg.FlushIntervalMS)
	assert.Equal(t, 100*time.Millisecond, cfg.FlushInterval())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Logging.File)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Empty(t, cfg.Agent.Command)
	assert.Equal(t, DefaultListenAddr, cfg.Serve.Listen)
	assert.Equal(t, DefaultServePath, cfg.Serve.Path)

	assert.NoError(t, cfg.Validate())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Agent.Command = "my-agent"

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(cfg.String()), &decoded))
	assert.Equal(t, float64(100), decoded["flush_interval_ms"])
	assert.Equal(t, "my-agent", decoded["agent"].(map[string]any)["command"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.FlushIntervalMS = 0 },
			wantErr: "flush interval must be positive",
		},
		{
			name:    "negative interval",
			mutate:  func(c *Config) { c.FlushIntervalMS = -5 },
			wantErr: "flush interval must be positive",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "bad metrics address",
			mutate:  func(c *Config) { c.Metrics.Addr = "nope" },
			wantErr: "metrics:",
		},
		{
			name:    "bad serve address",
			mutate:  func(c *Config) { c.Serve.Listen = "127.0.0.1:http" },
			wantErr: "serve:",
		},
		{
			name:   "metrics enabled",
			mutate: func(c *Config) { c.Metrics.Addr = ":9090" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateAgent(t *testing.T) {
	cfg := DefaultConfig()
	assert.Error(t, cfg.ValidateAgent())

	cfg.Agent.Command = "claude-code-acp"
	assert.NoError(t, cfg.ValidateAgent())
}
