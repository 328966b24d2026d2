package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE_URL", "SQLITE_PATH", "API_AUTH_TOKEN", "ALLOWED_ORIGINS",
		"TREE_CACHE_SIZE", "WATCH_DIR", "RATE_LIMIT_PER_MIN", "RATE_LIMIT_BURST", "OTEL_ENDPOINT", "GIN_MODE", "JOB_RETENTION"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "5339" {
		t.Errorf("Expected default port 5339. Got: %s", cfg.Port)
	}
	if cfg.TreeCacheSize != 64 {
		t.Errorf("Expected tree cache size 64. Got: %d", cfg.TreeCacheSize)
	}
	if cfg.RateLimitPerMin != 120 || cfg.RateLimitBurst != 30 {
		t.Errorf("Expected rate limit 120/30. Got: %d/%d", cfg.RateLimitPerMin, cfg.RateLimitBurst)
	}
	if cfg.JobRetention != time.Hour {
		t.Errorf("Expected job retention 1h. Got: %s", cfg.JobRetention)
	}
	if !cfg.AllowsAnyOrigin() {
		t.Errorf("Expected wildcard CORS without ALLOWED_ORIGINS")
	}
	if cfg.Release() {
		t.Errorf("Expected debug mode by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("SQLITE_PATH", "/tmp/engine.db")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TREE_CACHE_SIZE", "8")
	t.Setenv("GIN_MODE", "release")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.SQLitePath != "/tmp/engine.db" || cfg.TreeCacheSize != 8 {
		t.Errorf("Overrides not applied. Got: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Expected two trimmed origins. Got: %q", cfg.AllowedOrigins)
	}
	if cfg.AllowsAnyOrigin() {
		t.Errorf("Expected an origin allow-list")
	}
	if !cfg.Release() {
		t.Errorf("Expected release mode")
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("TREE_CACHE_SIZE", "many")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("Expected parse env error. Got: %v", err)
	}

	t.Setenv("TREE_CACHE_SIZE", "0")
	if _, err := Load(); err == nil {
		t.Fatal("Expected validation error for zero cache size")
	}

	t.Setenv("TREE_CACHE_SIZE", "8")
	t.Setenv("JOB_RETENTION", "0s")
	if _, err := Load(); err == nil {
		t.Fatal("Expected validation error for zero job retention")
	}
}
