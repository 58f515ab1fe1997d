package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithSecret(t *testing.T) {
	t.Setenv("PROMPTDECK_AUTH_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("unexpected addr: %q", cfg.Addr)
	}
	if time.Duration(cfg.Auth.TokenTTL) != 15*time.Minute {
		t.Fatalf("unexpected ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.DataDir != "data" {
		t.Fatalf("unexpected data dir: %q", cfg.DataDir)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("PROMPTDECK_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
addr: ":9000"
auth:
  secret: from-file
  token_ttl: 1h
http:
  rate_burst: 5
  rate_per_sec: 2
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PROMPTDECK_CONFIG", path)
	t.Setenv("PROMPTDECK_ADDR", ":9100")
	t.Setenv("PROMPTDECK_AUTH_SECRET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9100" {
		t.Fatalf("env should win over file, got %q", cfg.Addr)
	}
	if cfg.Auth.Secret != "from-env" {
		t.Fatalf("env should win over file, got %q", cfg.Auth.Secret)
	}
	if time.Duration(cfg.Auth.TokenTTL) != time.Hour {
		t.Fatalf("file value lost: %v", cfg.Auth.TokenTTL)
	}
	if cfg.HTTP.RateBurst != 5 || cfg.HTTP.RatePerSec != 2 {
		t.Fatalf("file rate limits lost: %+v", cfg.HTTP)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("PROMPTDECK_AUTH_SECRET", "s3cret")
	t.Setenv("PROMPTDECK_RATE_BURST", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for zero rate burst")
	}
}
