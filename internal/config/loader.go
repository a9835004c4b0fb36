package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. DECAF_FLUSH_INTERVAL_MS or
// DECAF_LOGGING_LEVEL.
const EnvPrefix = "DECAF"

// Loader handles configuration loading
type Loader struct {
	configPath string

	// set by Load; Watch reuses it
	v *viper.Viper
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file if it exists, then applies environment
// overrides on top of the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := viper.New()
	v.SetConfigType("json")

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Env overrides only apply to keys viper knows about
	setDefaults(v, DefaultConfig())

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	l.v = v
	return cfg, nil
}

// Watch reloads the config file whenever it changes and hands the result to
// onChange, with the validation error if any. Environment overrides still
// apply. It reports false when the last Load found no file to watch.
func (l *Loader) Watch(onChange func(*Config, error)) bool {
	if l.v == nil || l.v.ConfigFileUsed() == "" {
		return false
	}

	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg := DefaultConfig()
		if err := l.v.Unmarshal(cfg); err != nil {
			onChange(nil, fmt.Errorf("failed to unmarshal config: %w", err))
			return
		}
		onChange(cfg, cfg.Validate())
	})
	l.v.WatchConfig()

	return true
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("flush_interval_ms", cfg.FlushIntervalMS)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
	v.SetDefault("tracing.enabled", cfg.Tracing.Enabled)
	v.SetDefault("agent.command", cfg.Agent.Command)
	v.SetDefault("agent.args", cfg.Agent.Args)
	v.SetDefault("agent.env", cfg.Agent.Env)
	v.SetDefault("agent.dir", cfg.Agent.Dir)
	v.SetDefault("serve.listen", cfg.Serve.Listen)
	v.SetDefault("serve.path", cfg.Serve.Path)
	v.SetDefault("serve.token", cfg.Serve.Token)
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("flush_interval_ms", cfg.FlushIntervalMS)
	v.Set("logging", cfg.Logging)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("agent", cfg.Agent)
	v.Set("serve", cfg.Serve)

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".decaf", "decaf.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
