package model

// TokenPair is what a successful login hands back to the client.
// Tokens are not stored; only revoked refresh tokens are remembered,
// by their jti, in the blacklist.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
