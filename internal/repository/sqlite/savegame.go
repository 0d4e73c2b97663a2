package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

var _ repository.SaveGameRepository = (*SaveGameDB)(nil)

// SaveGameDB stores one snapshot per user in saved_game_data.
type SaveGameDB struct {
	conn *sql.DB
}

// Upsert writes the whole snapshot.
//
// HOW "created" IS DETECTED:
// The insert branch writes revision = 1; the conflict branch bumps the stored
// revision. RETURNING revision therefore tells us which branch ran without a
// separate existence check that could race with another save.
func (s *SaveGameDB) Upsert(ctx context.Context, save *model.SaveGame) (bool, error) {
	tags := save.TopTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return false, fmt.Errorf("sqlite: encoding top tags: %w", err)
	}

	now := time.Now().UTC()
	var revision int64
	err = s.conn.QueryRowContext(ctx,
		`INSERT INTO saved_game_data
			(user_id, co2_tons, citizen_satisfaction, budget, top_tags, ai_city_name, revision, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			co2_tons             = excluded.co2_tons,
			citizen_satisfaction = excluded.citizen_satisfaction,
			budget               = excluded.budget,
			top_tags             = excluded.top_tags,
			ai_city_name         = excluded.ai_city_name,
			revision             = saved_game_data.revision + 1,
			updated_at           = excluded.updated_at
		 RETURNING revision`,
		save.UserID, save.CO2Tons, save.CitizenSatisfaction, save.Budget,
		string(tagsJSON), save.AICityName, now, now,
	).Scan(&revision)
	if err != nil {
		return false, fmt.Errorf("sqlite: upserting saved game for user %s: %w", save.UserID, err)
	}

	save.TopTags = tags
	save.Revision = revision
	save.UpdatedAt = now
	created := revision == 1
	if created {
		save.CreatedAt = now
	}
	return created, nil
}

func (s *SaveGameDB) GetByUserID(ctx context.Context, userID string) (*model.SaveGame, error) {
	var (
		save     model.SaveGame
		tagsJSON string
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT user_id, co2_tons, citizen_satisfaction, budget, top_tags, ai_city_name,
			revision, created_at, updated_at
		 FROM saved_game_data WHERE user_id = ?`,
		userID,
	).Scan(
		&save.UserID,
		&save.CO2Tons,
		&save.CitizenSatisfaction,
		&save.Budget,
		&tagsJSON,
		&save.AICityName,
		&save.Revision,
		&save.CreatedAt,
		&save.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NotFound("saved game", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting saved game for user %s: %w", userID, err)
	}

	save.TopTags = []string{}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &save.TopTags); err != nil {
			return nil, fmt.Errorf("sqlite: decoding top tags for user %s: %w", userID, err)
		}
	}
	return &save, nil
}

func (s *SaveGameDB) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM saved_game_data WHERE user_id = ?)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking saved game for user %s: %w", userID, err)
	}
	return exists, nil
}
