package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sakif/ecocity-backend/internal/model"
)

// newTestTokenService creates a TokenService with a fixed secret so tests
// are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", 0, 0)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

// =========================================================================
// CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", 0, 0)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTLs(t *testing.T) {
	ts := newTestTokenService(t)

	if ts.AccessTTL() != DefaultAccessTTL {
		t.Errorf("AccessTTL() = %v, want %v", ts.AccessTTL(), DefaultAccessTTL)
	}
	if ts.RefreshTTL() != DefaultRefreshTTL {
		t.Errorf("RefreshTTL() = %v, want %v", ts.RefreshTTL(), DefaultRefreshTTL)
	}
}

// =========================================================================
// ISSUE TESTS
// =========================================================================

func TestIssuePair(t *testing.T) {
	ts := newTestTokenService(t)

	pair, err := ts.IssuePair(&model.User{ID: "user-123"})
	if err != nil {
		t.Fatalf("IssuePair() error = %v", err)
	}
	if strings.Count(pair.Access, ".") != 2 || strings.Count(pair.Refresh, ".") != 2 {
		t.Fatal("IssuePair() tokens do not look like JWTs")
	}
	if pair.Access == pair.Refresh {
		t.Error("access and refresh tokens must differ")
	}

	userID, err := ts.Validate(pair.Access)
	if err != nil {
		t.Fatalf("Validate(access) error = %v", err)
	}
	if userID != "user-123" {
		t.Errorf("Validate() userID = %q, want %q", userID, "user-123")
	}

	rc, err := ts.ParseRefresh(pair.Refresh)
	if err != nil {
		t.Fatalf("ParseRefresh() error = %v", err)
	}
	if rc.UserID != "user-123" || rc.JTI == "" {
		t.Errorf("ParseRefresh() = %+v, want subject user-123 and a jti", rc)
	}
	if time.Until(rc.ExpiresAt) < DefaultRefreshTTL-time.Minute {
		t.Errorf("refresh expiry %v is earlier than expected", rc.ExpiresAt)
	}
}

func TestIssuePair_InvalidUser(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.IssuePair(nil); err == nil {
		t.Error("IssuePair(nil) should fail")
	}
	if _, err := ts.IssuePair(&model.User{}); err == nil {
		t.Error("IssuePair() with empty user id should fail")
	}
}

func TestRefreshTokensHaveUniqueJTI(t *testing.T) {
	ts := newTestTokenService(t)
	user := &model.User{ID: "user-123"}

	a, _ := ts.IssuePair(user)
	b, _ := ts.IssuePair(user)

	ra, _ := ts.ParseRefresh(a.Refresh)
	rb, _ := ts.ParseRefresh(b.Refresh)
	if ra.JTI == rb.JTI {
		t.Error("two refresh tokens share a jti; revoking one would revoke both")
	}
}

// =========================================================================
// VALIDATE TESTS
// =========================================================================

func TestValidate_RejectsRefreshToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair(&model.User{ID: "user-123"})

	_, err := ts.Validate(pair.Refresh)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("Validate(refresh) error = %v, want ErrWrongTokenType", err)
	}
}

func TestParseRefresh_RejectsAccessToken(t *testing.T) {
	ts := newTestTokenService(t)
	pair, _ := ts.IssuePair(&model.User{ID: "user-123"})

	_, err := ts.ParseRefresh(pair.Access)
	if !errors.Is(err, ErrWrongTokenType) {
		t.Fatalf("ParseRefresh(access) error = %v, want ErrWrongTokenType", err)
	}
}

func TestValidate_ExpiredToken(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.GenerateWithDuration("user-123", TokenTypeAccess, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateWithDuration() error = %v", err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Fatal("Validate() should return an error for an expired token")
	}
}

func TestValidate_TamperedToken(t *testing.T) {
	ts := newTestTokenService(t)
	token, _ := ts.GenerateAccess("user-123")

	tampered := token[:len(token)-3] + "xxx"

	if _, err := ts.Validate(tampered); err == nil {
		t.Fatal("Validate() should return an error for a tampered token")
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts1, _ := NewTokenService("correct-secret-32-chars-long!!!!", 0, 0)
	ts2, _ := NewTokenService("wrong-secret-32-chars-long!!!!!!", 0, 0)

	token, _ := ts1.GenerateAccess("user-123")

	if _, err := ts2.Validate(token); err == nil {
		t.Fatal("Validate() should fail when using a different secret")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, in := range []string{"", "not.a.jwt.token", "abc"} {
		if _, err := ts.Validate(in); err == nil {
			t.Errorf("Validate(%q) should fail", in)
		}
		if _, err := ts.ParseRefresh(in); err == nil {
			t.Errorf("ParseRefresh(%q) should fail", in)
		}
	}
}
