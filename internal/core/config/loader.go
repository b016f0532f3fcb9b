package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads a TOML file, applies MIXMIRROR_* environment overrides and
// defaults, then validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	return finish(&cfg)
}

// FromEnv builds a configuration from defaults and environment overrides
// only, for runs without a config file.
func FromEnv() (*Config, error) {
	return finish(&Config{})
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	normalize(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DB.Path) == "" {
		cfg.DB.Path = "mixmirror.db"
	}
	if cfg.DB.BusyTimeout <= 0 {
		cfg.DB.BusyTimeout = 5 * time.Second
	}

	if cfg.Actor.FailureLogRate <= 0 {
		cfg.Actor.FailureLogRate = 5
	}
	if cfg.Actor.FailureLogBurst <= 0 {
		cfg.Actor.FailureLogBurst = 20
	}
	if cfg.Actor.Backoff.BaseDelay <= 0 {
		cfg.Actor.Backoff.BaseDelay = 100 * time.Millisecond
	}
	if cfg.Actor.Backoff.MaxDelay <= 0 {
		cfg.Actor.Backoff.MaxDelay = 10 * time.Second
	}

	if strings.TrimSpace(cfg.DeadLetter.Path) == "" {
		cfg.DeadLetter.Path = "mixmirror-dead-letters.db"
	}

	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "text"
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
}

func normalize(cfg *Config) {
	cfg.DB.Path = strings.TrimSpace(cfg.DB.Path)
	cfg.DeadLetter.Path = strings.TrimSpace(cfg.DeadLetter.Path)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Observability.Address = strings.TrimSpace(cfg.Observability.Address)
	cfg.Observability.OTLPEndpoint = strings.TrimSpace(cfg.Observability.OTLPEndpoint)

	if len(cfg.Filter.DropProperties) == 0 {
		return
	}
	patterns := make([]string, 0, len(cfg.Filter.DropProperties))
	for _, p := range cfg.Filter.DropProperties {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		patterns = append(patterns, p)
	}
	cfg.Filter.DropProperties = patterns
}
