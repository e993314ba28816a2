package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("GOOGLE_TIMEOUT_SECONDS", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_MAX_IDLE_CONNS", "")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.Addr != ":8000" {
		t.Fatalf("expected default addr :8000, got %q", cfg.Addr)
	}
	if cfg.RedisURL != "" {
		t.Fatalf("expected redis disabled by default, got %q", cfg.RedisURL)
	}
	if cfg.GoogleTimeout != 5*time.Second {
		t.Fatalf("expected 5s google timeout, got %s", cfg.GoogleTimeout)
	}
	if cfg.TokenCacheTTL != time.Hour {
		t.Fatalf("expected 1h token cache ttl, got %s", cfg.TokenCacheTTL)
	}
	if cfg.DBMaxOpenConns != 20 || cfg.DBMaxIdleConns != 10 {
		t.Fatalf("expected 20/10 pool defaults, got %d/%d", cfg.DBMaxOpenConns, cfg.DBMaxIdleConns)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("MINDNOTE_GOOGLE_FAKE", "")
	os.Unsetenv("API_ADDR")
	os.Unsetenv("MINDNOTE_GOOGLE_FAKE")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("API_ADDR=:9999\nMINDNOTE_GOOGLE_FAKE=true\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg := Load(path)

	if cfg.Addr != ":9999" {
		t.Fatalf("expected addr from env file, got %q", cfg.Addr)
	}
	if !cfg.GoogleFake {
		t.Fatalf("expected google fake enabled from env file")
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("GOOGLE_TIMEOUT_SECONDS", "soon")
	t.Setenv("MINDNOTE_GOOGLE_FAKE", "maybe")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	if cfg.GoogleTimeout != 5*time.Second {
		t.Fatalf("expected fallback timeout, got %s", cfg.GoogleTimeout)
	}
	if cfg.GoogleFake {
		t.Fatalf("expected fallback false for invalid bool")
	}
}
