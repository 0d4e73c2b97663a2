// Package redis keeps the refresh token blacklist in Redis, for deployments
// that run several API instances in front of one database.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/repository"
)

const blacklistKeyPrefix = "ecocity:blacklist:"

// minTTL keeps a key alive briefly even when the token is already at its
// expiry, so a racing refresh still sees it revoked.
const minTTL = time.Second

// Blacklist is a Redis-backed repository.TokenBlacklist.
type Blacklist struct {
	client *redis.Client
	now    func() time.Time
}

var _ repository.TokenBlacklist = (*Blacklist)(nil)

// New connects to url (e.g. redis://localhost:6379/0) and verifies the
// connection.
func New(ctx context.Context, url string) (*Blacklist, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parsing url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return NewWithClient(client), nil
}

// NewWithClient wraps an existing client (used by tests).
func NewWithClient(client *redis.Client) *Blacklist {
	return &Blacklist{client: client, now: time.Now}
}

func (b *Blacklist) Close() error {
	return b.client.Close()
}

func (b *Blacklist) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Revoke stores the jti with SET NX. The key expires together with the token,
// so the blacklist never outgrows the set of still-valid refresh tokens.
func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(b.now())
	if ttl < minTTL {
		ttl = minTTL
	}

	ok, err := b.client.SetNX(ctx, blacklistKey(jti), b.now().Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis: blacklisting token: %w", err)
	}
	if !ok {
		return apperror.Conflict("token", jti)
	}
	return nil
}

func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := b.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("redis: checking token blacklist: %w", err)
	}
	return n > 0, nil
}

func blacklistKey(jti string) string {
	return blacklistKeyPrefix + jti
}
