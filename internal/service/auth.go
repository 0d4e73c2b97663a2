// Package service holds the authentication, save-game and city-naming logic.
//
// AuthService sits between the HTTP handlers and the stores:
//
//	AuthHandler (HTTP) → AuthService → UserRepository / AuthSessionRepository (DB)
//	                                 ↘ OAuthProvider (Kakao), TokenService (JWT),
//	                                   TokenBlacklist (SQLite or Redis)
//
// WHAT THIS LAYER DOES NOT DO:
//   - It does not set cookies or read requests (HTTP concerns).
//   - It does not know which status code an error becomes; it returns
//     apperror values and the handler maps them.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/auth"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

// OAuthProvider is the social login provider as seen by the login flow.
// *auth.KakaoProvider implements it; tests substitute a fake.
type OAuthProvider interface {
	Configured() error
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.KakaoProfile, error)
}

// AuthDeps groups AuthService's collaborators.
type AuthDeps struct {
	Users      repository.UserRepository
	Sessions   repository.AuthSessionRepository
	Blacklist  repository.TokenBlacklist
	Tokens     *auth.TokenService
	Passwords  *auth.PasswordService
	Provider   OAuthProvider
	Clock      clockwork.Clock // defaults to the real clock
	SessionTTL time.Duration   // defaults to model.DefaultAuthSessionTTL
}

// AuthService handles login, token issuance and logout.
type AuthService struct {
	users      repository.UserRepository
	sessions   repository.AuthSessionRepository
	blacklist  repository.TokenBlacklist
	tokens     *auth.TokenService
	passwords  *auth.PasswordService
	provider   OAuthProvider
	clock      clockwork.Clock
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(deps AuthDeps, logger *slog.Logger) *AuthService {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ttl := deps.SessionTTL
	if ttl <= 0 {
		ttl = model.DefaultAuthSessionTTL
	}
	return &AuthService{
		users:      deps.Users,
		sessions:   deps.Sessions,
		blacklist:  deps.Blacklist,
		tokens:     deps.Tokens,
		passwords:  deps.Passwords,
		provider:   deps.Provider,
		clock:      clock,
		sessionTTL: ttl,
		logger:     logger,
	}
}

// LoginResult is what a completed social login hands back to the handler.
type LoginResult struct {
	User    *model.User
	Created bool // true on first login ("register"), false afterwards ("login")
	Tokens  model.TokenPair
}

// StartLogin creates a correlation session and returns the Kakao authorize
// URL carrying its state.
func (s *AuthService) StartLogin(ctx context.Context) (string, error) {
	if err := s.provider.Configured(); err != nil {
		return "", err
	}

	session := &model.AuthSession{
		State:     uuid.NewString(),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return "", fmt.Errorf("service/auth: starting login: %w", err)
	}

	return s.provider.AuthURL(session.State), nil
}

// CompleteLogin runs the callback half of the flow.
//
// ORDER OF OPERATIONS:
//  1. Cheap local checks (code, configuration, state) before any network call.
//  2. Code → token → profile at Kakao. Any failure stops here with no writes.
//  3. Only then: claim the session, upsert the user, link the two, mint tokens.
//
// The session check in step 1 is read-only; step 3 claims it with a
// conditional update before any user write, so a state can only ever
// complete one login and a callback that loses the race mutates nothing.
func (s *AuthService) CompleteLogin(ctx context.Context, code, state string) (*LoginResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, apperror.ValidationFailed("code", "authorization code is required")
	}
	if err := s.provider.Configured(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(state) == "" {
		return nil, apperror.ValidationFailed("state", "login state is required")
	}

	notBefore := s.clock.Now().UTC().Add(-s.sessionTTL)
	if _, err := s.sessions.GetActive(ctx, state, notBefore); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errInvalidLoginSession()
		}
		return nil, fmt.Errorf("service/auth: loading login session: %w", err)
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("kakao exchange failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("service/auth: %w", err)
	}

	kakaoID := profile.KakaoID()
	if kakaoID == "" {
		return nil, apperror.Upstream("kakao profile has no user id", "")
	}

	// Claim the state before touching the user so a losing concurrent
	// callback leaves no trace.
	if err := s.sessions.Complete(ctx, state, notBefore, s.clock.Now().UTC()); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, errInvalidLoginSession()
		}
		return nil, fmt.Errorf("service/auth: completing login session: %w", err)
	}

	user := &model.User{
		Username:    model.KakaoUsername(kakaoID),
		DisplayName: profile.Nickname(),
	}
	created, err := s.users.UpsertByUsername(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (kakaoID=%s): %w", kakaoID, err)
	}

	if err := s.sessions.LinkUser(ctx, state, user.ID); err != nil {
		return nil, fmt.Errorf("service/auth: linking login session: %w", err)
	}

	tokens, err := s.IssueTokens(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user authenticated via kakao",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
		slog.Bool("created", created),
	)

	return &LoginResult{User: user, Created: created, Tokens: tokens}, nil
}

// IssueTokens mints a token pair. It fails only for a nil or unsaved user.
func (s *AuthService) IssueTokens(user *model.User) (model.TokenPair, error) {
	pair, err := s.tokens.IssuePair(user)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("service/auth: issuing tokens: %w", err)
	}
	return pair, nil
}

// Login checks username/password credentials and issues a token pair.
// Kakao accounts have no password and always fail here.
func (s *AuthService) Login(ctx context.Context, username, password string) (model.TokenPair, error) {
	if username == "" || password == "" {
		return model.TokenPair{}, apperror.ValidationFailed("username", "username and password are required")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return model.TokenPair{}, errBadCredentials()
		}
		return model.TokenPair{}, fmt.Errorf("service/auth: looking up %s: %w", username, err)
	}
	if !user.HasPassword() {
		return model.TokenPair{}, errBadCredentials()
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			return model.TokenPair{}, errBadCredentials()
		}
		return model.TokenPair{}, fmt.Errorf("service/auth: verifying password: %w", err)
	}

	return s.IssueTokens(user)
}

// Refresh exchanges a refresh token for a new access token. The refresh
// token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (string, error) {
	rc, err := s.parseRefresh(refresh)
	if err != nil {
		return "", err
	}

	revoked, err := s.blacklist.IsRevoked(ctx, rc.JTI)
	if err != nil {
		return "", fmt.Errorf("service/auth: checking blacklist: %w", err)
	}
	if revoked {
		return "", apperror.ValidationFailed("refresh", "token is blacklisted")
	}

	if _, err := s.users.GetUserByID(ctx, rc.UserID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.Unauthorized("user not found")
		}
		return "", fmt.Errorf("service/auth: loading user %s: %w", rc.UserID, err)
	}

	access, err := s.tokens.GenerateAccess(rc.UserID)
	if err != nil {
		return "", fmt.Errorf("service/auth: issuing access token: %w", err)
	}
	return access, nil
}

// Logout blacklists the refresh token. callerID is the user authenticated by
// the access token; a refresh token belonging to someone else is refused.
// Revoking the same token twice is an error, not a no-op.
func (s *AuthService) Logout(ctx context.Context, callerID, refresh string) error {
	rc, err := s.parseRefresh(refresh)
	if err != nil {
		return err
	}
	if callerID != "" && rc.UserID != callerID {
		return apperror.Forbidden("refresh token belongs to another user")
	}

	if err := s.blacklist.Revoke(ctx, rc.JTI, rc.ExpiresAt); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return apperror.ValidationFailed("refresh", "token is blacklisted")
		}
		return fmt.Errorf("service/auth: blacklisting token: %w", err)
	}

	s.logger.Info("refresh token revoked", slog.String("userID", rc.UserID))
	return nil
}

// GetUserByID returns the user for the /users/profile endpoint.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.Unauthorized("authentication required")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// CreateUser creates a password account (admin CLI).
func (s *AuthService) CreateUser(ctx context.Context, username, password string) (*model.User, error) {
	if strings.HasPrefix(username, model.KakaoUsernamePrefix) {
		return nil, apperror.ValidationFailed("username",
			fmt.Sprintf("usernames starting with %q are reserved for kakao accounts", model.KakaoUsernamePrefix))
	}
	if strings.TrimSpace(username) == "" {
		return nil, apperror.ValidationFailed("username", "username is required")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{Username: username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: creating user %s: %w", username, err)
	}
	return user, nil
}

// SetPassword replaces the password of an existing account (admin CLI).
func (s *AuthService) SetPassword(ctx context.Context, username, password string) error {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("service/auth: looking up %s: %w", username, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return apperror.ValidationFailed("password", err.Error())
	}
	return s.users.SetPassword(ctx, user.ID, hash)
}

// PurgeResult reports what PurgeExpired removed.
type PurgeResult struct {
	Sessions        int64 `json:"sessions"`
	BlacklistedJTIs int64 `json:"blacklistedTokens"`
}

// expiringBlacklist is implemented by blacklist stores that need explicit
// cleanup. The Redis store expires keys by itself and does not.
type expiringBlacklist interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PurgeExpired deletes expired login sessions and, where the store needs
// it, blacklist entries for tokens that have expired anyway.
func (s *AuthService) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	var res PurgeResult
	now := s.clock.Now().UTC()

	n, err := s.sessions.DeleteExpired(ctx, now.Add(-s.sessionTTL))
	if err != nil {
		return res, fmt.Errorf("service/auth: purging sessions: %w", err)
	}
	res.Sessions = n

	if bl, ok := s.blacklist.(expiringBlacklist); ok {
		n, err := bl.DeleteExpired(ctx, now)
		if err != nil {
			return res, fmt.Errorf("service/auth: purging blacklist: %w", err)
		}
		res.BlacklistedJTIs = n
	}
	return res, nil
}

func (s *AuthService) parseRefresh(refresh string) (*auth.RefreshClaims, error) {
	if strings.TrimSpace(refresh) == "" {
		return nil, apperror.ValidationFailed("refresh", "refresh token is required")
	}
	rc, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return nil, &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "token is invalid or expired",
			Field:   "refresh",
			Code:    "token_not_valid",
		}
	}
	return rc, nil
}

func errInvalidLoginSession() *apperror.AppError {
	return apperror.ValidationFailed("state", "login session is invalid, expired or already used").
		WithCode("invalid_state")
}

func errBadCredentials() *apperror.AppError {
	return apperror.Unauthorized("no active account found with the given credentials")
}
