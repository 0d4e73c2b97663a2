// Package auth provides JWT issuing, bearer authentication middleware,
// password hashing and the Kakao OAuth client.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. The game calls /users/kakao/login/ and opens the returned auth_url.
//  2. Kakao redirects to /users/kakao/callback/ with a one-time code.
//  3. The server exchanges the code, fetches the Kakao profile, upserts the
//     user and issues an access/refresh token pair.
//  4. API calls carry the access token as "Authorization: Bearer <jwt>"
//     (or the accessToken cookie); RequireAuth validates it.
//  5. Logout blacklists the refresh token by its jti.
//
// TWO TOKEN TYPES, ONE SECRET:
// Both tokens are HS256 JWTs signed with the same secret. A "token_type"
// claim keeps them apart, so a refresh token can never be replayed as an
// access token (or the other way round).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"

	"github.com/sakif/ecocity-backend/internal/model"
)

const issuer = "ecocity2050"

const (
	// DefaultAccessTTL is how long an access token authorizes API calls.
	DefaultAccessTTL = 30 * time.Minute
	// DefaultRefreshTTL is how long a refresh token can mint access tokens.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// ErrWrongTokenType is returned when a refresh token is presented where an
// access token is expected, or vice versa.
var ErrWrongTokenType = errors.New("auth: wrong token type")

// TokenService handles JWT creation and validation.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a TokenService with the given secret.
// Non-positive TTLs fall back to DefaultAccessTTL / DefaultRefreshTTL.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL is exposed so handlers can match cookie lifetimes to tokens.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL is exposed so handlers can match cookie lifetimes to tokens.
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

// claims is the JWT payload. "sub" holds the internal user id and "jti" a
// unique token id (used by the blacklist).
type claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// RefreshClaims is what callers need to know about a parsed refresh token.
type RefreshClaims struct {
	UserID    string
	JTI       string
	ExpiresAt time.Time
}

// IssuePair mints an access and a refresh token for user.
func (s *TokenService) IssuePair(user *model.User) (model.TokenPair, error) {
	if user == nil || user.ID == "" {
		return model.TokenPair{}, errors.New("auth: cannot issue tokens for an unknown user")
	}

	access, err := s.GenerateWithDuration(user.ID, TokenTypeAccess, s.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, err := s.GenerateWithDuration(user.ID, TokenTypeRefresh, s.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{Access: access, Refresh: refresh}, nil
}

// GenerateAccess mints a fresh access token, used by the refresh endpoint.
func (s *TokenService) GenerateAccess(userID string) (string, error) {
	return s.GenerateWithDuration(userID, TokenTypeAccess, s.accessTTL)
}

// GenerateWithDuration creates a token of the given type with a custom
// lifetime. Tests use negative durations to get already-expired tokens.
func (s *TokenService) GenerateWithDuration(userID, tokenType string, d time.Duration) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        xid.New().String(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
		TokenType: tokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate verifies an access token and returns the user id in its subject.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	c, err := s.parse(tokenStr, TokenTypeAccess)
	if err != nil {
		return "", err
	}
	return c.Subject, nil
}

// ParseRefresh verifies a refresh token. Blacklist checks are the caller's
// job; this only checks signature, expiry and type.
func (s *TokenService) ParseRefresh(tokenStr string) (*RefreshClaims, error) {
	c, err := s.parse(tokenStr, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, errors.New("auth: refresh token has no jti")
	}
	return &RefreshClaims{
		UserID:    c.Subject,
		JTI:       c.ID,
		ExpiresAt: c.ExpiresAt.Time,
	}, nil
}

// parse runs the library validation.
//
// ALGORITHM CONFUSION ATTACK:
// Without pinning the algorithm, a token signed with "none" could be
// accepted. jwt.WithValidMethods rejects everything but HS256.
func (s *TokenService) parse(tokenStr, wantType string) (*claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}
	if c.TokenType != wantType {
		return nil, ErrWrongTokenType
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("auth: token has no subject")
	}
	return c, nil
}
