package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/repository"
)

// Error codes the game client switches on. "user not found" and "no saved
// data" are both 404s, so the code is the only way to tell them apart.
const (
	CodeUserIDRequired = "user_id_required"
	CodeUserNotFound   = "user_not_found"
	CodeSaveNotFound   = "save_not_found"
)

// SaveGameService stores one snapshot per user.
//
// IDENTIFYING THE USER:
// The game sends the raw Kakao id as "userId", not our internal id. The
// owning account is looked up by its derived username (kakao_<id>), the
// same derivation the login flow uses, so a save can only land on an
// account that has logged in at least once.
type SaveGameService struct {
	users  repository.UserRepository
	saves  repository.SaveGameRepository
	logger *slog.Logger
}

func NewSaveGameService(users repository.UserRepository, saves repository.SaveGameRepository, logger *slog.Logger) *SaveGameService {
	return &SaveGameService{
		users:  users,
		saves:  saves,
		logger: logger,
	}
}

// Save overwrites the user's snapshot. It reports whether this was the
// user's first save.
func (s *SaveGameService) Save(ctx context.Context, kakaoID string, snapshot *model.SaveGame) (bool, error) {
	user, err := s.resolveUser(ctx, kakaoID)
	if err != nil {
		return false, err
	}
	if err := validateSnapshot(snapshot); err != nil {
		return false, err
	}

	snapshot.UserID = user.ID
	if snapshot.TopTags == nil {
		snapshot.TopTags = []string{}
	}

	created, err := s.saves.Upsert(ctx, snapshot)
	if err != nil {
		return false, fmt.Errorf("service/savegame: saving for %s: %w", user.Username, err)
	}

	s.logger.Info("game saved",
		slog.String("userID", user.ID),
		slog.Bool("created", created),
		slog.Int64("revision", snapshot.Revision),
	)
	return created, nil
}

// Load returns the user's snapshot.
func (s *SaveGameService) Load(ctx context.Context, kakaoID string) (*model.SaveGame, error) {
	user, err := s.resolveUser(ctx, kakaoID)
	if err != nil {
		return nil, err
	}

	save, err := s.saves.GetByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("saved game", kakaoID).WithCode(CodeSaveNotFound)
		}
		return nil, fmt.Errorf("service/savegame: loading for %s: %w", user.Username, err)
	}
	return save, nil
}

// Exists reports whether the user has a snapshot. An unknown user is an
// error, not "false".
func (s *SaveGameService) Exists(ctx context.Context, kakaoID string) (bool, error) {
	user, err := s.resolveUser(ctx, kakaoID)
	if err != nil {
		return false, err
	}

	ok, err := s.saves.ExistsForUser(ctx, user.ID)
	if err != nil {
		return false, fmt.Errorf("service/savegame: checking for %s: %w", user.Username, err)
	}
	return ok, nil
}

func (s *SaveGameService) resolveUser(ctx context.Context, kakaoID string) (*model.User, error) {
	kakaoID = strings.TrimSpace(kakaoID)
	if kakaoID == "" {
		return nil, apperror.Unauthorized("userId is required").WithCode(CodeUserIDRequired)
	}

	user, err := s.users.GetByUsername(ctx, model.KakaoUsername(kakaoID))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.NotFound("user", kakaoID).WithCode(CodeUserNotFound)
		}
		return nil, fmt.Errorf("service/savegame: resolving user %s: %w", kakaoID, err)
	}
	return user, nil
}

func validateSnapshot(s *model.SaveGame) error {
	if s == nil {
		return apperror.ValidationFailed("body", "save data is required")
	}
	if math.IsNaN(s.CO2Tons) || math.IsInf(s.CO2Tons, 0) {
		return apperror.ValidationFailed("co2Tons", "co2Tons must be a finite number")
	}
	if s.CO2Tons < 0 {
		return apperror.ValidationFailed("co2Tons", "co2Tons must not be negative")
	}
	return nil
}
