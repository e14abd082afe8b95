// Package config loads tracevis's configuration: defaults.Set, then a
// YAML file, then Validate. File IO goes through afero so tests can
// substitute an in-memory filesystem.
package config

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// RetryConfig bounds the Process Data Store / External-Call Binder's
// wait-retry loops.
type RetryConfig struct {
	MaxAttempts    int `yaml:"max_attempts" default:"10"`
	BaseIntervalMS int `yaml:"base_interval_ms" default:"60"`
}

// DeferredConfig governs the periodic deferred-work drain.
type DeferredConfig struct {
	WakePeriodMS int `yaml:"wake_period_ms" default:"500"`
	DrainPasses  int `yaml:"drain_passes" default:"10"` // passes run on pipe close before shutdown
}

// RedisConfig points at the save-flag/notify Redis instance. Nil
// disables both; save-in-progress is then always false and thread-end
// notifications are dropped locally (see internal/savesignal, internal/notify
// no-op variants).
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db" default:"0"`
	SaveFlagKey  string `yaml:"save_flag_key" default:"tracevis:save_in_progress"`
	NotifyChan   string `yaml:"notify_channel" default:"tracevis:thread_end"`
	PollIntervalMS int  `yaml:"poll_interval_ms" default:"20"`
}

// IntrospectConfig configures the read-only HTTP/WS introspection
// surface.
type IntrospectConfig struct {
	Enabled    bool   `yaml:"enabled" default:"true"`
	ListenAddr string `yaml:"listen_addr" default:"127.0.0.1:9600"`
}

// Config is the top-level tracevis configuration.
type Config struct {
	LogLevel  string `yaml:"log_level" default:"info"`
	LogJSON   bool   `yaml:"log_json" default:"false"`

	PipeDir string `yaml:"pipe_dir" default:"/tmp/tracevis"`

	Retry      RetryConfig      `yaml:"retry"`
	Deferred   DeferredConfig   `yaml:"deferred"`
	Redis      *RedisConfig     `yaml:"redis"`
	Introspect IntrospectConfig `yaml:"introspect"`

	NodeArgCapacity int `yaml:"node_arg_capacity" default:"32"`

	CacheSize int `yaml:"cache_size" default:"4096"`
}

// Validate rejects configurations the rest of the system cannot safely
// run with.
func (c *Config) Validate() error {
	if c.PipeDir == "" {
		return fmt.Errorf("pipe_dir must not be empty")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Deferred.WakePeriodMS <= 0 {
		return fmt.Errorf("deferred.wake_period_ms must be positive, got %d", c.Deferred.WakePeriodMS)
	}
	if c.NodeArgCapacity <= 0 {
		return fmt.Errorf("node_arg_capacity must be positive, got %d", c.NodeArgCapacity)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache_size must be positive, got %d", c.CacheSize)
	}
	return nil
}

// Load reads and validates a YAML config file from fs at path, applying
// struct defaults first.
func Load(fs afero.Fs, path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	type plain Config
	if err := yaml.Unmarshal(raw, (*plain)(cfg)); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Redis != nil {
		if err := defaults.Set(cfg.Redis); err != nil {
			return nil, fmt.Errorf("apply redis defaults: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
