package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/repository"
)

var _ repository.TokenBlacklist = (*BlacklistDB)(nil)

// BlacklistDB remembers revoked refresh tokens by jti.
type BlacklistDB struct {
	conn *sql.DB
}

// Revoke inserts the jti. The primary key makes a second revoke of the same
// token affect zero rows, which we report as a conflict.
func (b *BlacklistDB) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	res, err := b.conn.ExecContext(ctx,
		`INSERT INTO token_blacklist (jti, expires_at, revoked_at) VALUES (?, ?, ?)
		 ON CONFLICT(jti) DO NOTHING`,
		jti, expiresAt.UnixMilli(), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: blacklisting token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Conflict("token", jti)
	}
	return nil
}

func (b *BlacklistDB) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var revoked bool
	err := b.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM token_blacklist WHERE jti = ?)`, jti,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking token blacklist: %w", err)
	}
	return revoked, nil
}

// DeleteExpired drops entries whose token would be rejected for expiry anyway.
func (b *BlacklistDB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := b.conn.ExecContext(ctx,
		`DELETE FROM token_blacklist WHERE expires_at < ?`, now.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired blacklist entries: %w", err)
	}
	return res.RowsAffected()
}
