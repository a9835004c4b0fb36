package config

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DefaultFlushIntervalMS is the coalescing interval used when none is set.
	DefaultFlushIntervalMS = 100
	DefaultListenAddr      = "127.0.0.1:8765"
	DefaultServePath       = "/acp"
)

// Config represents the main decaf configuration
type Config struct {
	// Coalescing interval in milliseconds
	FlushIntervalMS int `json:"flush_interval_ms" mapstructure:"flush_interval_ms"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Metrics endpoint
	Metrics MetricsConfig `json:"metrics" mapstructure:"metrics"`

	// OpenTelemetry spans
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Agent subprocess
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Websocket listener
	Serve ServeConfig `json:"serve" mapstructure:"serve"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`   // trace, debug, info, warn, error
	File   string `json:"file" mapstructure:"file"`     // empty logs to stderr only
	Pretty bool   `json:"pretty" mapstructure:"pretty"` // human readable console output
}

// MetricsConfig holds the Prometheus endpoint configuration
type MetricsConfig struct {
	Addr string `json:"addr" mapstructure:"addr"` // empty disables the endpoint
}

// TracingConfig holds span export configuration
type TracingConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"` // export spans to the log
}

// AgentConfig describes the agent process decaf spawns
type AgentConfig struct {
	Command string   `json:"command" mapstructure:"command"`
	Args    []string `json:"args" mapstructure:"args"`
	Env     []string `json:"env" mapstructure:"env"` // extra KEY=VALUE pairs
	Dir     string   `json:"dir" mapstructure:"dir"`
}

// ServeConfig holds websocket listener configuration
type ServeConfig struct {
	Listen string `json:"listen" mapstructure:"listen"`
	Path   string `json:"path" mapstructure:"path"`
	Token  string `json:"token" mapstructure:"token"` // bearer token clients must present; empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		FlushIntervalMS: DefaultFlushIntervalMS,
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		Agent: AgentConfig{
			Args: []string{},
			Env:  []string{},
		},
		Serve: ServeConfig{
			Listen: DefaultListenAddr,
			Path:   DefaultServePath,
		},
	}
}

// FlushInterval returns the coalescing interval.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateInterval(c.FlushIntervalMS); err != nil {
		return err
	}

	if err := v.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	if c.Metrics.Addr != "" {
		if err := v.ValidateListenAddr(c.Metrics.Addr); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if c.Serve.Listen != "" {
		if err := v.ValidateListenAddr(c.Serve.Listen); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	return nil
}

// ValidateAgent checks that an agent command is configured. Only the proxy
// commands need one, so it is separate from Validate.
func (c *Config) ValidateAgent() error {
	if c.Agent.Command == "" {
		return fmt.Errorf("no agent command configured: pass it after -- or set agent.command")
	}
	return nil
}
