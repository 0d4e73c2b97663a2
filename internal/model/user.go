// Package model defines the data structures used throughout the application.
package model

import (
	"strings"
	"time"
)

// KakaoUsernamePrefix is prepended to the Kakao user id to build the local
// username. The mapping is deterministic, so the same Kakao account always
// lands on the same row.
const KakaoUsernamePrefix = "kakao_"

// User represents a local account.
//
// Social logins never set a password: PasswordHash stays empty and the
// token-issue endpoint refuses them. Password accounts are created through
// the admin CLI.
//
// WHY NOT KEY ON THE PROVIDER ID DIRECTLY?
// The username column is UNIQUE and derived from the provider id
// (see KakaoUsername). Keeping our own xid primary key means a future
// provider can be added without touching the foreign keys of save games.
type User struct {
	ID           string    `json:"id"          db:"id"`
	Username     string    `json:"username"    db:"username"`     // e.g. "kakao_123456789"
	DisplayName  string    `json:"displayName" db:"display_name"` // provider nickname, may be empty
	PasswordHash string    `json:"-"           db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt"   db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"   db:"updated_at"`
}

// HasPassword reports whether the account can log in with credentials.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// KakaoUsername derives the local username for a Kakao user id.
// The game client sends the same id as "userId" on the save-game endpoints.
func KakaoUsername(kakaoID string) string {
	return KakaoUsernamePrefix + strings.TrimSpace(kakaoID)
}
