package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func parseMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := parseMap(map[string]string{"JWT_SECRET": testSecret})
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.False(t, cfg.Debug)
	assert.Equal(t, "data/ecocity.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, 10*time.Second, cfg.UpstreamTimeout)
	assert.Equal(t, 10*time.Minute, cfg.AuthSessionTTL)
	assert.Equal(t, BlacklistSQLite, cfg.BlacklistBackend)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Empty(t, cfg.KakaoClientID, "provider credentials are optional")
}

func TestParse_Overrides(t *testing.T) {
	cfg, err := parseMap(map[string]string{
		"JWT_SECRET":              testSecret,
		"PORT":                    "9000",
		"DEBUG":                   "true",
		"JWT_ACCESS_TTL":          "5m",
		"KAKAO_CLIENT_ID":         "kakao-app",
		"KAKAO_REDIRECT_URL":      "https://api.example/users/kakao/callback/",
		"TOKEN_BLACKLIST_BACKEND": "redis",
		"REDIS_URL":               "redis://localhost:6379/0",
		"LOG_LEVEL":               "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 5*time.Minute, cfg.AccessTTL)
	assert.Equal(t, "kakao-app", cfg.KakaoClientID)
	assert.Equal(t, BlacklistRedis, cfg.BlacklistBackend)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		vars    map[string]string
		wantMsg string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, "at least 16"},
		{"bad backend", map[string]string{"JWT_SECRET": testSecret, "TOKEN_BLACKLIST_BACKEND": "memcached"}, "TOKEN_BLACKLIST_BACKEND"},
		{"redis without url", map[string]string{"JWT_SECRET": testSecret, "TOKEN_BLACKLIST_BACKEND": "redis"}, "REDIS_URL"},
		{"bad log level", map[string]string{"JWT_SECRET": testSecret, "LOG_LEVEL": "loud"}, "LOG_LEVEL"},
		{"bad duration", map[string]string{"JWT_SECRET": testSecret, "UPSTREAM_TIMEOUT": "soon"}, "soon"},
		{"zero timeout", map[string]string{"JWT_SECRET": testSecret, "UPSTREAM_TIMEOUT": "0s"}, "UPSTREAM_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseMap(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
