package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: MIXMIRROR_[SECTION]_[KEY] (e.g., MIXMIRROR_DB_PATH). Unset
// variables leave the current value alone.
func ApplyEnvOverrides(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
