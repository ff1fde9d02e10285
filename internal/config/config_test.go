package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_DefaultsAndDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenv := filepath.Join(dir, "test.env")
	if err := os.WriteFile(dotenv, []byte("ANNIHILATION_ADDR=:9999\nCORS_ALLOWED_ORIGINS=https://a.example,https://b.example\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	// godotenv never overrides the environment, so clear what the file sets
	for _, k := range []string{"ANNIHILATION_ADDR", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
	t.Setenv("RATE_ACTION_BURST", "7")

	cfg, err := Load(dotenv, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Fatalf("addr=%q", cfg.Addr)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("origins=%v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Limits.ActionBurst != 7 || cfg.Limits.ActionsPerSecond != 20 {
		t.Fatalf("limits=%+v", cfg.Limits)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Auth.TokenTTL != 24*time.Hour {
		t.Fatalf("defaults: store=%q ttl=%v", cfg.Store.Driver, cfg.Auth.TokenTTL)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Store: StoreConfig{Driver: "sqlite"}, Limits: LimitConfig{ActionsPerSecond: 1}}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid: %v", err)
	}
	bad := base
	bad.Store.Driver = "postgres"
	if bad.Validate() == nil {
		t.Fatalf("postgres without dsn accepted")
	}
	bad = base
	bad.Auth.JWTSecret = "short"
	if bad.Validate() == nil {
		t.Fatalf("short secret accepted")
	}
}
