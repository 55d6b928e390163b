package config

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("unexpected default port: %d", cfg.Server.Port)
	}
	if cfg.Vault.CacheTTLMin != 30 {
		t.Fatalf("unexpected default cache ttl: %d", cfg.Vault.CacheTTLMin)
	}
	if len(cfg.Vault.SeedProviders) == 0 {
		t.Fatalf("expected default seed providers")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults: %#v", cfg.Logging)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("server:\n  port: 9999\nvault:\n  cache_ttl_min: 5\n  seed_providers: [Anthropic]\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Fatalf("yaml port not applied: %d", cfg.Server.Port)
	}
	if cfg.Vault.CacheTTL() != 5*time.Minute {
		t.Fatalf("yaml ttl not applied: %v", cfg.Vault.CacheTTL())
	}
	if len(cfg.Vault.SeedProviders) != 1 || cfg.Vault.SeedProviders[0] != "Anthropic" {
		t.Fatalf("yaml seed providers not applied: %#v", cfg.Vault.SeedProviders)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("SERVER_PORT", "7777")
	t.Setenv("DATABASE_DSN", "postgres://example/db")
	t.Setenv("VAULT_KDF_ITERATIONS", "1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 7777 {
		t.Fatalf("env port not applied: %d", cfg.Server.Port)
	}
	if cfg.Database.DSN != "postgres://example/db" {
		t.Fatalf("env dsn not applied: %s", cfg.Database.DSN)
	}
	if cfg.Vault.KDFIterations != 1000 {
		t.Fatalf("env iterations not applied: %d", cfg.Vault.KDFIterations)
	}
}

func TestParseCacheKey(t *testing.T) {
	raw := bytes.Repeat([]byte{0xab}, 32)

	cases := []struct {
		name  string
		value string
	}{
		{"raw", string(bytes.Repeat([]byte("k"), 32))},
		{"base64", base64.StdEncoding.EncodeToString(raw)},
		{"hex", hex.EncodeToString(raw)},
	}
	for _, tc := range cases {
		cfg := VaultConfig{CacheKey: tc.value}
		key, err := cfg.ParseCacheKey()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if l := len(key); l != 32 {
			t.Fatalf("%s: expected 32 byte key, got %d", tc.name, l)
		}
	}

	if _, err := (VaultConfig{}).ParseCacheKey(); err == nil {
		t.Fatalf("expected error for empty key")
	}
	if _, err := (VaultConfig{CacheKey: "too-short"}).ParseCacheKey(); err == nil {
		t.Fatalf("expected error for undecodable key")
	}
}

func TestTTLHelpers(t *testing.T) {
	if ttl := (AuthConfig{TokenTTLMin: 90}).TokenTTL(); ttl != 90*time.Minute {
		t.Fatalf("unexpected token ttl: %v", ttl)
	}
	if ttl := (VaultConfig{CacheTTLMin: 15}).CacheTTL(); ttl != 15*time.Minute {
		t.Fatalf("unexpected cache ttl: %v", ttl)
	}
}
