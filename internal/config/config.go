// Package config loads application configuration from an optional YAML file
// with environment variable overrides. A .env file is honoured in development.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Vault    VaultConfig    `yaml:"vault"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_sec"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	TokenTTLMin int    `yaml:"token_ttl_min"`
}

type VaultConfig struct {
	// CacheKey encrypts session cache entries at rest. Raw 16/24/32 bytes, or
	// base64/hex encoding of such.
	CacheKey      string   `yaml:"cache_key"`
	CacheTTLMin   int      `yaml:"cache_ttl_min"`
	KDFIterations int      `yaml:"kdf_iterations"`
	DeriveWorkers int      `yaml:"derive_workers"`
	SeedProviders []string `yaml:"seed_providers"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads config.yaml (path overridable via CONFIG_PATH) and applies
// environment overrides. Missing file is not an error; env alone can fully
// configure the application.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeoutSec: 15, WriteTimeoutSec: 15},
		Redis:  RedisConfig{Addr: "localhost:6379"},
		Auth:   AuthConfig{TokenTTLMin: 60},
		Vault:  VaultConfig{CacheTTLMin: 30, SeedProviders: []string{"OpenAI", "Gemini"}},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_DSN")
	setInt(&cfg.Database.MaxOpenConns, "DATABASE_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "DATABASE_MAX_IDLE_CONNS")
	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setInt(&cfg.Auth.TokenTTLMin, "TOKEN_TTL_MIN")
	setString(&cfg.Vault.CacheKey, "VAULT_CACHE_KEY")
	setInt(&cfg.Vault.CacheTTLMin, "VAULT_CACHE_TTL_MIN")
	setInt(&cfg.Vault.KDFIterations, "VAULT_KDF_ITERATIONS")
	setInt(&cfg.Vault.DeriveWorkers, "VAULT_DERIVE_WORKERS")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")
	setString(&cfg.Logging.Output, "LOG_OUTPUT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// CacheTTL returns the vault cache TTL as a duration.
func (c VaultConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMin) * time.Minute
}

// TokenTTL returns the access token lifetime as a duration.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.TokenTTLMin) * time.Minute
}

// ParseCacheKey decodes the cache encryption key. Accepts raw 16/24/32 byte
// strings or base64/hex encodings of that length.
func (c VaultConfig) ParseCacheKey() ([]byte, error) {
	value := c.CacheKey
	if value == "" {
		return nil, errors.New("vault cache key is not configured")
	}

	if l := len(value); l == 16 || l == 24 || l == 32 {
		return []byte(value), nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		if l := len(decoded); l == 16 || l == 24 || l == 32 {
			return decoded, nil
		}
	}
	if decoded, err := hex.DecodeString(value); err == nil {
		if l := len(decoded); l == 16 || l == 24 || l == 32 {
			return decoded, nil
		}
	}
	return nil, errors.New("vault cache key must be raw 16/24/32 bytes or base64/hex encoding of that length")
}
