package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/auth"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

// =========================================================================
// IN-MEMORY REPOSITORIES
// =========================================================================
//
// Hand-written fakes of the repository interfaces. They follow the same
// contracts as the SQLite implementations (NotFound on absent rows,
// Conflict on duplicate revocations) so the services can't tell the
// difference. A mutex guards each map because the save-game tests call in
// from several goroutines.

var (
	_ repository.UserRepository        = (*mockUserRepo)(nil)
	_ repository.AuthSessionRepository = (*mockSessionRepo)(nil)
	_ repository.SaveGameRepository    = (*mockSaveRepo)(nil)
	_ repository.TokenBlacklist        = (*mockBlacklist)(nil)
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	nextID int
	err    error // returned by every call when set
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{byID: make(map[string]*model.User)}
}

func (m *mockUserRepo) findByUsername(username string) *model.User {
	for _, u := range m.byID {
		if u.Username == username {
			return u
		}
	}
	return nil
}

func (m *mockUserRepo) Create(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.findByUsername(user.Username) != nil {
		return apperror.Conflict("user", user.Username)
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.byID[user.ID] = &stored
	return nil
}

func (m *mockUserRepo) UpsertByUsername(_ context.Context, user *model.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if existing := m.findByUsername(user.Username); existing != nil {
		existing.DisplayName = user.DisplayName
		*user = *existing
		return false, nil
	}
	m.nextID++
	user.ID = fmt.Sprintf("user-%d", m.nextID)
	stored := *user
	m.byID[user.ID] = &stored
	return true, nil
}

func (m *mockUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byID[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) GetByUsername(_ context.Context, username string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u := m.findByUsername(username)
	if u == nil {
		return nil, apperror.NotFound("user", username)
	}
	result := *u
	return &result, nil
}

func (m *mockUserRepo) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

type mockSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.AuthSession
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{sessions: make(map[string]*model.AuthSession)}
}

func (m *mockSessionRepo) Create(_ context.Context, s *model.AuthSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.State]; ok {
		return apperror.Conflict("auth session", s.State)
	}
	stored := *s
	m.sessions[s.State] = &stored
	return nil
}

func (m *mockSessionRepo) active(state string, notBefore time.Time) *model.AuthSession {
	s, ok := m.sessions[state]
	if !ok || s.Completed || s.CreatedAt.Before(notBefore) {
		return nil
	}
	return s
}

func (m *mockSessionRepo) GetActive(_ context.Context, state string, notBefore time.Time) (*model.AuthSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active(state, notBefore)
	if s == nil {
		return nil, apperror.NotFound("auth session", state)
	}
	result := *s
	return &result, nil
}

func (m *mockSessionRepo) Complete(_ context.Context, state string, notBefore, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.active(state, notBefore)
	if s == nil {
		return apperror.NotFound("auth session", state)
	}
	s.Completed = true
	s.CompletedAt = &now
	return nil
}

func (m *mockSessionRepo) LinkUser(_ context.Context, state, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[state]
	if !ok || !s.Completed {
		return apperror.NotFound("auth session", state)
	}
	s.UserID = userID
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context, notBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for state, s := range m.sessions {
		if s.CreatedAt.Before(notBefore) {
			delete(m.sessions, state)
			n++
		}
	}
	return n, nil
}

func (m *mockSessionRepo) get(state string) *model.AuthSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[state]
}

func (m *mockSessionRepo) only() *model.AuthSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		return s
	}
	return nil
}

// mockBlacklist also implements DeleteExpired, like the SQLite store.
type mockBlacklist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func newMockBlacklist() *mockBlacklist {
	return &mockBlacklist{revoked: make(map[string]time.Time)}
}

func (m *mockBlacklist) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.revoked[jti]; ok {
		return apperror.Conflict("blacklisted token", jti)
	}
	m.revoked[jti] = expiresAt
	return nil
}

func (m *mockBlacklist) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *mockBlacklist) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for jti, exp := range m.revoked {
		if !exp.After(now) {
			delete(m.revoked, jti)
			n++
		}
	}
	return n, nil
}

type mockSaveRepo struct {
	mu    sync.Mutex
	saves map[string]*model.SaveGame
	err   error
}

func newMockSaveRepo() *mockSaveRepo {
	return &mockSaveRepo{saves: make(map[string]*model.SaveGame)}
}

func (m *mockSaveRepo) Upsert(_ context.Context, save *model.SaveGame) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	now := time.Now().UTC()
	prev, exists := m.saves[save.UserID]
	save.Revision = 1
	save.CreatedAt = now
	if exists {
		save.Revision = prev.Revision + 1
		save.CreatedAt = prev.CreatedAt
	}
	save.UpdatedAt = now
	stored := *save
	stored.TopTags = append([]string{}, save.TopTags...)
	m.saves[save.UserID] = &stored
	return !exists, nil
}

func (m *mockSaveRepo) GetByUserID(_ context.Context, userID string) (*model.SaveGame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.saves[userID]
	if !ok {
		return nil, apperror.NotFound("saved game", userID)
	}
	result := *s
	result.TopTags = append([]string{}, s.TopTags...)
	return &result, nil
}

func (m *mockSaveRepo) ExistsForUser(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.saves[userID]
	return ok, nil
}

// =========================================================================
// FAKE PROVIDERS
// =========================================================================

// fakeProvider is a scripted Kakao. exchanges counts calls so tests can
// assert the provider was never contacted.
type fakeProvider struct {
	configErr error
	profile   *auth.KakaoProfile
	err       error
	exchanges int

	// onExchange runs inside Exchange, standing in for whatever else
	// happens while the Kakao round-trip is in flight.
	onExchange func()
}

func (f *fakeProvider) Configured() error { return f.configErr }

func (f *fakeProvider) AuthURL(state string) string {
	return "https://kauth.example/oauth/authorize?state=" + state
}

func (f *fakeProvider) Exchange(_ context.Context, _ string) (*auth.KakaoProfile, error) {
	f.exchanges++
	if f.onExchange != nil {
		f.onExchange()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func kakaoProfile(id, nickname string) *auth.KakaoProfile {
	p := &auth.KakaoProfile{ID: json.Number(id)}
	if nickname != "" {
		p.KakaoAccount = &auth.KakaoAccount{Profile: &auth.KakaoAccountProfile{Nickname: &nickname}}
	}
	return p
}

// fakeGenerator is a scripted text generator.
type fakeGenerator struct {
	reply      string
	err        error
	gotSystem  string
	gotMessage string
	calls      int
}

func (f *fakeGenerator) Complete(_ context.Context, system, user string) (string, error) {
	f.calls++
	f.gotSystem = system
	f.gotMessage = user
	return f.reply, f.err
}
