package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

var _ repository.AuthSessionRepository = (*SessionDB)(nil)

// SessionDB stores login correlation sessions. Times are unix milliseconds.
type SessionDB struct {
	conn *sql.DB
}

func (s *SessionDB) Create(ctx context.Context, session *model.AuthSession) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO auth_sessions (state, is_completed, created_at) VALUES (?, 0, ?)`,
		session.State, session.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating auth session: %w", err)
	}
	return nil
}

func (s *SessionDB) GetActive(ctx context.Context, state string, notBefore time.Time) (*model.AuthSession, error) {
	var (
		session     model.AuthSession
		userID      sql.NullString
		createdAt   int64
		completedAt sql.NullInt64
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT state, user_id, is_completed, created_at, completed_at
		 FROM auth_sessions
		 WHERE state = ? AND is_completed = 0 AND created_at >= ?`,
		state, notBefore.UnixMilli(),
	).Scan(&session.State, &userID, &session.Completed, &createdAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("auth session", state)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting auth session: %w", err)
	}

	session.UserID = userID.String
	session.CreatedAt = time.UnixMilli(createdAt).UTC()
	if completedAt.Valid {
		t := time.UnixMilli(completedAt.Int64).UTC()
		session.CompletedAt = &t
	}
	return &session, nil
}

// Complete is a conditional UPDATE: the WHERE clause re-checks that the
// session is still open and unexpired, so two callbacks racing on the same
// state cannot both succeed.
func (s *SessionDB) Complete(ctx context.Context, state string, notBefore, now time.Time) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE auth_sessions
		 SET is_completed = 1, completed_at = ?
		 WHERE state = ? AND is_completed = 0 AND created_at >= ?`,
		now.UnixMilli(), state, notBefore.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: completing auth session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("auth session", state)
	}
	return nil
}

func (s *SessionDB) LinkUser(ctx context.Context, state, userID string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE auth_sessions SET user_id = ? WHERE state = ? AND is_completed = 1`,
		userID, state,
	)
	if err != nil {
		return fmt.Errorf("sqlite: linking auth session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("auth session", state)
	}
	return nil
}

// DeleteExpired removes sessions created before notBefore, completed or not.
func (s *SessionDB) DeleteExpired(ctx context.Context, notBefore time.Time) (int64, error) {
	res, err := s.conn.ExecContext(ctx,
		`DELETE FROM auth_sessions WHERE created_at < ?`, notBefore.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired auth sessions: %w", err)
	}
	return res.RowsAffected()
}
