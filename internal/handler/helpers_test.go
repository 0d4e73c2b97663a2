package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/ecocity-backend/internal/auth"
	"github.com/sakif/ecocity-backend/internal/llm"
	sqliteRepo "github.com/sakif/ecocity-backend/internal/repository/sqlite"
	"github.com/sakif/ecocity-backend/internal/service"
)

// stubProvider replaces Kakao. Handler tests exercise the real services on
// an in-memory database; only the network edge is faked.
type stubProvider struct {
	configErr error
	profile   *auth.KakaoProfile
	err       error
}

func (s *stubProvider) Configured() error { return s.configErr }

func (s *stubProvider) AuthURL(state string) string {
	return "https://kauth.example/oauth/authorize?state=" + state
}

func (s *stubProvider) Exchange(context.Context, string) (*auth.KakaoProfile, error) {
	return s.profile, s.err
}

func profileFor(id, nickname string) *auth.KakaoProfile {
	return &auth.KakaoProfile{
		ID:           json.Number(id),
		KakaoAccount: &auth.KakaoAccount{Profile: &auth.KakaoAccountProfile{Nickname: &nickname}},
	}
}

type testEnv struct {
	db       *sqliteRepo.DB
	tokens   *auth.TokenService
	provider *stubProvider
	authSvc  *service.AuthService
	auth     *AuthHandler
	saves    *SaveGameHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := sqliteRepo.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", 0, 0)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	provider := &stubProvider{profile: profileFor("1001", "에코")}

	authSvc := service.NewAuthService(service.AuthDeps{
		Users:      db.Users(),
		Sessions:   db.Sessions(),
		Blacklist:  db.Blacklist(),
		Tokens:     tokens,
		Passwords:  auth.NewPasswordService(bcrypt.MinCost),
		Provider:   provider,
		SessionTTL: 10 * time.Minute,
	}, logger)

	return &testEnv{
		db:       db,
		tokens:   tokens,
		provider: provider,
		authSvc:  authSvc,
		auth: NewAuthHandler(authSvc, CookieOptions{
			Secure:     true,
			AccessTTL:  tokens.AccessTTL(),
			RefreshTTL: tokens.RefreshTTL(),
		}, logger),
		saves: NewSaveGameHandler(service.NewSaveGameService(db.Users(), db.SaveGames(), logger), logger),
	}
}

// login runs the full Kakao flow for the stub profile and returns the
// callback response.
func (e *testEnv) login(t *testing.T) *httptest.ResponseRecorder {
	t.Helper()

	rr := do(t, e.auth.HandleKakaoLogin, http.MethodGet, "/users/kakao/login/", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		AuthURL string `json:"auth_url"`
	}
	decode(t, rr, &body)
	req := httptest.NewRequest(http.MethodGet, body.AuthURL, nil)
	state := req.URL.Query().Get("state")
	require.NotEmpty(t, state)

	rr = do(t, e.auth.HandleKakaoCallback, http.MethodGet, "/users/kakao/callback/?code=abc&state="+state, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return rr
}

func newTestLLM(t *testing.T, reply string) *llm.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return llm.New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Timeout: time.Second})
}

// do runs a handler directly. body, if non-nil, is sent as JSON.
func do(t *testing.T, h http.HandlerFunc, method, target string, body any, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = bytes.NewBufferString(s)
		} else {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			r = bytes.NewReader(b)
		}
	}

	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, opt := range opts {
		opt(req)
	}

	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func asUser(userID string) func(*http.Request) {
	return func(r *http.Request) {
		*r = *r.WithContext(auth.WithUserID(r.Context(), userID))
	}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), rr.Body.String())
}

func cookieByName(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
