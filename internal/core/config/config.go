package config

import (
	"time"
)

// DefaultPath is where the CLI looks for a config file when none is given.
const DefaultPath = "./mixmirror.toml"

type Config struct {
	DB            Database      `toml:"db"`
	Actor         Actor         `toml:"actor"`
	DeadLetter    DeadLetter    `toml:"dead_letter"`
	Filter        Filter        `toml:"filter"`
	Log           Log           `toml:"log"`
	Observability Observability `toml:"observability"`
}

type Database struct {
	// Path is a file path or ":memory:".
	Path        string        `toml:"path" env:"MIXMIRROR_DB_PATH"`
	BusyTimeout time.Duration `toml:"busy_timeout" env:"MIXMIRROR_DB_BUSY_TIMEOUT"`
}

type Actor struct {
	// FailureLogRate is the sustained number of failure log lines per second.
	FailureLogRate  float64 `toml:"failure_log_rate" env:"MIXMIRROR_ACTOR_FAILURE_LOG_RATE"`
	FailureLogBurst int     `toml:"failure_log_burst" env:"MIXMIRROR_ACTOR_FAILURE_LOG_BURST"`
	Backoff         Backoff `toml:"backoff"`
}

type Backoff struct {
	Enabled   bool          `toml:"enabled" env:"MIXMIRROR_ACTOR_BACKOFF_ENABLED"`
	BaseDelay time.Duration `toml:"base_delay" env:"MIXMIRROR_ACTOR_BACKOFF_BASE_DELAY"`
	MaxDelay  time.Duration `toml:"max_delay" env:"MIXMIRROR_ACTOR_BACKOFF_MAX_DELAY"`
}

type DeadLetter struct {
	Enabled bool   `toml:"enabled" env:"MIXMIRROR_DEAD_LETTER_ENABLED"`
	Path    string `toml:"path" env:"MIXMIRROR_DEAD_LETTER_PATH"`
}

type Filter struct {
	// DropProperties lists glob patterns of property keys that are never
	// persisted, e.g. "node.latency" or "object.*".
	DropProperties []string `toml:"drop_properties" env:"MIXMIRROR_FILTER_DROP_PROPERTIES" envSeparator:","`
}

type Log struct {
	Level  string `toml:"level" env:"MIXMIRROR_LOG_LEVEL"`
	Format string `toml:"format" env:"MIXMIRROR_LOG_FORMAT"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled" env:"MIXMIRROR_OBSERVABILITY_ENABLED"`
	Address       string `toml:"address" env:"MIXMIRROR_OBSERVABILITY_ADDRESS"`
	OTLPEndpoint  string `toml:"otlp_endpoint" env:"MIXMIRROR_OBSERVABILITY_OTLP_ENDPOINT"`
	EnableTracing bool   `toml:"enable_tracing" env:"MIXMIRROR_OBSERVABILITY_ENABLE_TRACING"`
}

// Default returns a fully defaulted configuration.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}
