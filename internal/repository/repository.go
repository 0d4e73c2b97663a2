package repository

import (
	"context"
	"time"

	"github.com/sakif/ecocity-backend/internal/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	// UpsertByUsername inserts the user or refreshes the display name of the
	// existing row with the same username. It fills in user.ID and the
	// timestamps and reports whether the row was newly created.
	UpsertByUsername(ctx context.Context, user *model.User) (created bool, err error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	SetPassword(ctx context.Context, id, passwordHash string) error
}

type AuthSessionRepository interface {
	Create(ctx context.Context, session *model.AuthSession) error
	// GetActive returns the session only if it is not completed and was
	// created at or after notBefore. Anything else is apperror.ErrNotFound.
	GetActive(ctx context.Context, state string, notBefore time.Time) (*model.AuthSession, error)
	// Complete claims an active session. It fails with apperror.ErrNotFound
	// if the session was already used or expired in the meantime.
	Complete(ctx context.Context, state string, notBefore, now time.Time) error
	// LinkUser records which user a completed session logged in.
	LinkUser(ctx context.Context, state, userID string) error
	DeleteExpired(ctx context.Context, notBefore time.Time) (int64, error)
}

type SaveGameRepository interface {
	// Upsert overwrites the user's snapshot in a single statement and reports
	// whether the row was created by this call.
	Upsert(ctx context.Context, save *model.SaveGame) (created bool, err error)
	GetByUserID(ctx context.Context, userID string) (*model.SaveGame, error)
	ExistsForUser(ctx context.Context, userID string) (bool, error)
}

// TokenBlacklist remembers revoked refresh tokens by their jti until they
// would have expired anyway.
type TokenBlacklist interface {
	// Revoke fails with apperror.ErrConflict if jti is already revoked.
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}
