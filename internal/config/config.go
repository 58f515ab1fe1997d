// Package config loads service configuration from an optional YAML file
// with environment variable overrides. Env always wins so container
// deployments can tweak a mounted base file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "PROMPTDECK_"

// Config is the full process configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	GRPCAddr string `yaml:"grpc_addr"`

	// DataDir holds the JSON snapshot files when no Postgres DSN is set.
	DataDir string `yaml:"data_dir"`
	PGDSN   string `yaml:"pg_dsn"`

	Auth  AuthConfig  `yaml:"auth"`
	Admin AdminConfig `yaml:"admin"`
	HTTP  HTTPConfig  `yaml:"http"`
}

// Duration parses yaml values like "15m" or "1h".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type AuthConfig struct {
	Secret   string   `yaml:"secret"`
	Issuer   string   `yaml:"issuer"`
	TokenTTL Duration `yaml:"token_ttl"`
}

// AdminConfig seeds the bootstrap admin account into an empty store.
type AdminConfig struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

type HTTPConfig struct {
	RateBurst    int   `yaml:"rate_burst"`
	RatePerSec   int   `yaml:"rate_per_sec"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

func defaults() Config {
	return Config{
		Addr:    ":8080",
		DataDir: "data",
		Auth: AuthConfig{
			Issuer:   "promptdeck",
			TokenTTL: Duration(15 * time.Minute),
		},
		Admin: AdminConfig{
			Name:  "Administrator",
			Email: "admin@promptdeck.local",
		},
		HTTP: HTTPConfig{
			RateBurst:    20,
			RatePerSec:   10,
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// PROMPTDECK_CONFIG (if any), then env overrides, then validation.
func Load() (Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Addr, "ADDR")
	setString(&cfg.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.DataDir, "DATA_DIR")
	setString(&cfg.PGDSN, "PG_DSN")
	setString(&cfg.Auth.Secret, "AUTH_SECRET")
	setString(&cfg.Auth.Issuer, "AUTH_ISSUER")
	setDuration(&cfg.Auth.TokenTTL, "TOKEN_TTL")
	setString(&cfg.Admin.Name, "ADMIN_NAME")
	setString(&cfg.Admin.Email, "ADMIN_EMAIL")
	setString(&cfg.Admin.Password, "ADMIN_PASSWORD")
	setInt(&cfg.HTTP.RateBurst, "RATE_BURST")
	setInt(&cfg.HTTP.RatePerSec, "RATE_PER_SEC")
	setInt64(&cfg.HTTP.MaxBodyBytes, "MAX_BODY_BYTES")
}

func (c Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return errors.New("config: auth secret is required (set " + envPrefix + "AUTH_SECRET)")
	}
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("config: listen address is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: token ttl must be positive")
	}
	if c.HTTP.RateBurst <= 0 || c.HTTP.RatePerSec <= 0 {
		return errors.New("config: rate limit values must be positive")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return errors.New("config: max body bytes must be positive")
	}
	if c.PGDSN == "" && strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: either pg_dsn or data_dir must be set")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
