package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores local accounts.
type UserDB struct {
	conn *sql.DB
}

const userColumns = `id, username, display_name, password_hash, created_at, updated_at`

// Create inserts a new user. A duplicate username is reported as
// apperror.ErrConflict.
func (u *UserDB) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now

	res, err := u.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		user.ID, user.Username, user.DisplayName, user.PasswordHash, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user %s: %w", user.Username, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.Conflict("user", user.Username)
	}
	return nil
}

// UpsertByUsername creates the user or refreshes the display name in one
// statement.
//
// WHY ONE STATEMENT?
// A SELECT followed by INSERT lets two concurrent first logins both decide
// the row is missing. INSERT .. ON CONFLICT is atomic on the UNIQUE index,
// and RETURNING id tells us which branch ran: if the id we generated comes
// back, the row is new.
func (u *UserDB) UpsertByUsername(ctx context.Context, user *model.User) (bool, error) {
	now := time.Now().UTC()
	candidateID := xid.New().String()

	var id string
	err := u.conn.QueryRowContext(ctx,
		`INSERT INTO users (id, username, display_name, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, '', ?, ?)
		 ON CONFLICT(username) DO UPDATE SET
			display_name = excluded.display_name,
			updated_at   = excluded.updated_at
		 RETURNING id`,
		candidateID, user.Username, user.DisplayName, now, now,
	).Scan(&id)
	if err != nil {
		return false, fmt.Errorf("sqlite: upserting user %s: %w", user.Username, err)
	}

	created := id == candidateID
	if created {
		user.ID = id
		user.PasswordHash = ""
		user.CreatedAt = now
		user.UpdatedAt = now
		return true, nil
	}

	stored, err := u.GetUserByID(ctx, id)
	if err != nil {
		return false, err
	}
	*user = *stored
	return false, nil
}

func (u *UserDB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	user, err := u.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return user, nil
}

func (u *UserDB) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	user, err := u.scanOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("user", username)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting user %s: %w", username, err)
	}
	return user, nil
}

func (u *UserDB) SetPassword(ctx context.Context, id, passwordHash string) error {
	res, err := u.conn.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting password for user %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}

func (u *UserDB) scanOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var user model.User
	err := u.conn.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
