// Package config loads service configuration from a YAML file with an
// environment overlay. A local .env file is honored for development.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from strings like "10m",
// "1h" or "90d" in both YAML and environment values.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// UnmarshalText implements encoding.TextUnmarshaler (used by the env
// overlay).
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := parseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// parseDuration accepts everything time.ParseDuration does plus a "d"
// suffix for whole days.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "d") {
		if n, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil {
			return time.Duration(n) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

// Provider holds the OAuth client credentials for one identity provider.
type Provider struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	RedirectURL  string   `yaml:"redirect_url"`
	Scopes       []string `yaml:"scopes"`
}

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env" env:"APP_ENV"`
	} `yaml:"app"`

	Server struct {
		Addr        string `yaml:"addr" env:"SERVER_ADDR"`
		MetricsAddr string `yaml:"metrics_addr" env:"SERVER_METRICS_ADDR"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`

	Storage struct {
		DSN          string `yaml:"dsn" env:"STORAGE_DSN"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"STORAGE_MAX_OPEN_CONNS"`
		MaxIdleConns int    `yaml:"max_idle_conns" env:"STORAGE_MAX_IDLE_CONNS"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind" env:"CACHE_KIND"`
		Redis struct {
			Addr   string `yaml:"addr" env:"CACHE_REDIS_ADDR"`
			DB     int    `yaml:"db" env:"CACHE_REDIS_DB"`
			Prefix string `yaml:"prefix" env:"CACHE_REDIS_PREFIX"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL Duration `yaml:"default_ttl" env:"CACHE_MEMORY_DEFAULT_TTL"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Auth struct {
		// TokenSecret signs this service's own bearer credentials and the
		// CSRF state tokens. Never a provider secret.
		TokenSecret string `yaml:"token_secret" env:"AUTH_TOKEN_SECRET"`

		// EncryptionKey protects provider tokens at rest: 64 hex chars
		// decoding to 32 bytes (AES-256). Generate with `authgate keygen`.
		EncryptionKey string `yaml:"encryption_key" env:"AUTH_ENCRYPTION_KEY"`

		Issuer string `yaml:"issuer" env:"AUTH_ISSUER"`

		AccessTTL  Duration `yaml:"access_ttl" env:"AUTH_ACCESS_TTL"`
		RefreshTTL Duration `yaml:"refresh_ttl" env:"AUTH_REFRESH_TTL"`
		StateTTL   Duration `yaml:"state_ttl" env:"AUTH_STATE_TTL"`

		// Fallbacks used only when the provider omits an expiry.
		ProviderAccessTTL  Duration `yaml:"provider_access_ttl" env:"AUTH_PROVIDER_ACCESS_TTL"`
		ProviderRefreshTTL Duration `yaml:"provider_refresh_ttl" env:"AUTH_PROVIDER_REFRESH_TTL"`

		Cookie struct {
			Domain string `yaml:"domain" env:"AUTH_COOKIE_DOMAIN"`
			Secure bool   `yaml:"secure" env:"AUTH_COOKIE_SECURE"`
		} `yaml:"cookie"`

		PostLoginRedirect string `yaml:"post_login_redirect" env:"AUTH_POST_LOGIN_REDIRECT"`
	} `yaml:"auth"`

	Providers map[string]Provider `yaml:"providers"`
}

// Load reads the YAML file at path (optional), overlays environment
// variables, and validates the result. A .env file in the working
// directory is loaded first, if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// Environment-only configuration is fine.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.App.Env = "dev"
	cfg.Server.Addr = ":8080"
	cfg.Server.MetricsAddr = ":9090"
	cfg.Log.Level = "info"
	cfg.Storage.MaxOpenConns = 10
	cfg.Storage.MaxIdleConns = 2
	cfg.Cache.Kind = "memory"
	cfg.Cache.Memory.DefaultTTL = Duration(10 * time.Minute)
	cfg.Auth.Issuer = "authgate"
	cfg.Auth.AccessTTL = Duration(time.Hour)
	cfg.Auth.RefreshTTL = Duration(90 * 24 * time.Hour)
	cfg.Auth.StateTTL = Duration(10 * time.Minute)
	cfg.Auth.ProviderAccessTTL = Duration(time.Hour)
	cfg.Auth.ProviderRefreshTTL = Duration(90 * 24 * time.Hour)
	cfg.Auth.PostLoginRedirect = "/"
	return cfg
}

// Validate checks the invariants that must hold before the process serves
// a single request. Failures here are fatal at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.TokenSecret) == "" {
		return fmt.Errorf("config: auth.token_secret is required")
	}
	key := strings.TrimSpace(c.Auth.EncryptionKey)
	if key == "" {
		return fmt.Errorf("config: auth.encryption_key is required")
	}
	raw, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("config: auth.encryption_key must be hex: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("config: auth.encryption_key must decode to 32 bytes, got %d", len(raw))
	}
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.dsn is required")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: cache.kind must be memory or redis, got %q", c.Cache.Kind)
	}
	return nil
}
