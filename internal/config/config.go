// Package config loads the server configuration from the environment.
//
// Nothing here is required: without DATABASE_URL the engine falls back to
// the embedded SQLite store, and without SQLITE_PATH it runs in memory
// only. Use a .env file for local development.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every environment-driven setting of the server.
type Config struct {
	Port string `env:"PORT" envDefault:"5339"`

	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH"`

	// APIAuthToken protects every mutating route when set.
	APIAuthToken   string   `env:"API_AUTH_TOKEN"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`

	TreeCacheSize int    `env:"TREE_CACHE_SIZE" envDefault:"64"`
	WatchDir      string `env:"WATCH_DIR"`

	RateLimitPerMin int `env:"RATE_LIMIT_PER_MIN" envDefault:"120"`
	RateLimitBurst  int `env:"RATE_LIMIT_BURST" envDefault:"30"`

	// JobRetention is how long finished sampling jobs stay queryable.
	JobRetention time.Duration `env:"JOB_RETENTION" envDefault:"1h"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	GinMode      string `env:"GIN_MODE"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	for i, o := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.TreeCacheSize < 1 {
		return fmt.Errorf("TREE_CACHE_SIZE must be positive, got %d", c.TreeCacheSize)
	}
	if c.RateLimitPerMin < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("rate limit must be positive (per-min %d, burst %d)", c.RateLimitPerMin, c.RateLimitBurst)
	}
	if c.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive, got %s", c.JobRetention)
	}
	return nil
}

// AllowsAnyOrigin reports whether CORS should answer with a wildcard.
func (c Config) AllowsAnyOrigin() bool {
	return len(c.AllowedOrigins) == 0 || (len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*")
}

// Release reports whether gin runs in release mode.
func (c Config) Release() bool {
	return c.GinMode == "release"
}
