package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/gobwas/glob"
)

// Validate reports every problem with cfg at once.
func Validate(cfg *Config) error {
	return errors.Join(
		validateDatabase(cfg),
		validateActor(cfg),
		validateDeadLetter(cfg),
		validateFilter(cfg),
		validateLog(cfg),
		validateObservability(cfg),
	)
}

func validateDatabase(cfg *Config) error {
	if cfg.DB.Path == "" {
		return fmt.Errorf("db.path must not be empty")
	}
	return nil
}

func validateActor(cfg *Config) error {
	if cfg.Actor.FailureLogBurst < 1 {
		return fmt.Errorf("actor.failure_log_burst must be >= 1, got %d", cfg.Actor.FailureLogBurst)
	}
	b := cfg.Actor.Backoff
	if b.MaxDelay < b.BaseDelay {
		return fmt.Errorf("actor.backoff.max_delay (%s) must be >= base_delay (%s)", b.MaxDelay, b.BaseDelay)
	}
	return nil
}

func validateDeadLetter(cfg *Config) error {
	if !cfg.DeadLetter.Enabled {
		return nil
	}
	if cfg.DeadLetter.Path == "" {
		return fmt.Errorf("dead_letter.path must not be empty when dead_letter.enabled is true")
	}
	if cfg.DeadLetter.Path == cfg.DB.Path {
		return fmt.Errorf("dead_letter.path must differ from db.path")
	}
	return nil
}

func validateFilter(cfg *Config) error {
	for i, p := range cfg.Filter.DropProperties {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("filter.drop_properties[%d] %q: %w", i, p, err)
		}
	}
	return nil
}

func validateLog(cfg *Config) error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

func validateObservability(cfg *Config) error {
	if cfg.Observability.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
			return fmt.Errorf("observability.address %q: %w", cfg.Observability.Address, err)
		}
	}
	if cfg.Observability.EnableTracing && cfg.Observability.OTLPEndpoint == "" {
		return fmt.Errorf("observability.otlp_endpoint is required when enable_tracing is true")
	}
	return nil
}
