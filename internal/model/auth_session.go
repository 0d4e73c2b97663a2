package model

import "time"

// DefaultAuthSessionTTL is how long a login flow may take between
// login-start and the provider redirecting back to the callback.
const DefaultAuthSessionTTL = 10 * time.Minute

// AuthSession correlates a login-start call with its callback.
//
// State is sent to Kakao in the authorization URL and comes back untouched
// on the callback. A session is usable exactly once and only within the TTL;
// once Completed is set it never matches again.
type AuthSession struct {
	State       string     `json:"state"       db:"state"`
	UserID      string     `json:"userId"      db:"user_id"` // empty until completed
	Completed   bool       `json:"completed"   db:"is_completed"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	CompletedAt *time.Time `json:"completedAt" db:"completed_at"`
}

// Expired reports whether the session is past its deadline at now.
func (s *AuthSession) Expired(now time.Time, ttl time.Duration) bool {
	return now.After(s.CreatedAt.Add(ttl))
}

// Usable reports whether the session can still complete a login.
func (s *AuthSession) Usable(now time.Time, ttl time.Duration) bool {
	return !s.Completed && !s.Expired(now, ttl)
}
