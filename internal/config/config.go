// Package config loads server settings from the environment.
//
// A .env file in the working directory is read first if present (handy for
// local runs); real environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Blacklist backends accepted by TOKEN_BLACKLIST_BACKEND.
const (
	BlacklistSQLite = "sqlite"
	BlacklistRedis  = "redis"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	Debug  bool   `env:"DEBUG" envDefault:"false"`
	DBPath string `env:"DB_PATH" envDefault:"data/ecocity.db"`

	JWTSecret  string        `env:"JWT_SECRET,required"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"30m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	// Kakao and OpenAI credentials are optional at startup; the endpoints
	// that need them answer with a configuration error instead.
	KakaoClientID     string `env:"KAKAO_CLIENT_ID"`
	KakaoClientSecret string `env:"KAKAO_CLIENT_SECRET"`
	KakaoRedirectURL  string `env:"KAKAO_REDIRECT_URL"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	AuthSessionTTL  time.Duration `env:"AUTH_SESSION_TTL" envDefault:"10m"`

	BlacklistBackend string `env:"TOKEN_BLACKLIST_BACKEND" envDefault:"sqlite"`
	RedisURL         string `env:"REDIS_URL"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return parse(env.Options{})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		errs = append(errs, errors.New("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, errors.New("UPSTREAM_TIMEOUT must be positive"))
	}
	if c.AuthSessionTTL <= 0 {
		errs = append(errs, errors.New("AUTH_SESSION_TTL must be positive"))
	}

	switch c.BlacklistBackend {
	case BlacklistSQLite:
	case BlacklistRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when TOKEN_BLACKLIST_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_BLACKLIST_BACKEND must be %q or %q, got %q",
			BlacklistSQLite, BlacklistRedis, c.BlacklistBackend))
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns LOG_LEVEL as a slog.Level. Validate has already
// rejected unknown names.
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", s)
	}
	return level, nil
}
