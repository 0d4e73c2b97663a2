package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/ecocity-backend/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:             8080,
		DBPath:           ":memory:",
		JWTSecret:        "server-test-secret-0123456789",
		AccessTTL:        30 * time.Minute,
		RefreshTTL:       time.Hour,
		UpstreamTimeout:  time.Second,
		AuthSessionTTL:   10 * time.Minute,
		BlacklistBackend: config.BlacklistSQLite,
		LogLevel:         "info",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv.Handler()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, r))
	return rr
}

func TestRoutes_TrailingSlashIsOptional(t *testing.T) {
	h := newTestServer(t, testConfig())

	// Kakao is not configured, so both spellings reach the handler and get
	// the same configuration error rather than a 404.
	for _, target := range []string{"/users/kakao/login/", "/users/kakao/login"} {
		rr := serve(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusInternalServerError, rr.Code, target)
		assert.Contains(t, rr.Body.String(), "configuration_error", target)
	}

	for _, target := range []string{"/load-game/?userId=1", "/load-game?userId=1"} {
		rr := serve(h, http.MethodGet, target, "")
		assert.Equal(t, http.StatusNotFound, rr.Code, target)
		assert.Contains(t, rr.Body.String(), "user_not_found", target)
	}
}

func TestRoutes_ProtectedNeedBearer(t *testing.T) {
	h := newTestServer(t, testConfig())

	rr := serve(h, http.MethodGet, "/users/profile/", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(h, http.MethodPost, "/users/logout/", `{"refresh":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoutes_NameCityWithoutKey(t *testing.T) {
	h := newTestServer(t, testConfig())

	rr := serve(h, http.MethodPost, "/name-city", `{"co2Tons": 1, "topTags": []}`)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), `"cityName":"에러"`)
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, testConfig())

	rr := serve(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"sqlite":"ok"}}`, rr.Body.String())

	serve(h, http.MethodGet, "/check-saved-data/?userId=7", "")

	rr = serve(h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `ecocity_http_requests_total{method="GET",route="/check-saved-data",status_code="404"} 1`)
}

func TestRedisBlacklistBackend(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.BlacklistBackend = config.BlacklistRedis
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	h := newTestServer(t, cfg)

	rr := serve(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"sqlite":"ok","redis":"ok"}}`, rr.Body.String())

	mr.Close()
	rr = serve(h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNew_RedisUnreachable(t *testing.T) {
	cfg := testConfig()
	cfg.BlacklistBackend = config.BlacklistRedis
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
