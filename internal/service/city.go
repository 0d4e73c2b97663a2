package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode"

	"github.com/sakif/ecocity-backend/internal/model"
)

const (
	// FallbackCityName is returned when the model answers with nothing usable.
	FallbackCityName = "이름생성실패"
	// FailedCityName is what the game shows when naming failed outright.
	FailedCityName = "에러"
)

const citySystemPrompt = "너는 게임 도시 이름 네이머다. 한국어, 2~4음절, 한 단어, 공백/특수문자 없이."

// TextGenerator is the language model as seen by CityService.
// *llm.Client implements it.
type TextGenerator interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CityService asks a language model to name the player's city.
type CityService struct {
	llm    TextGenerator
	logger *slog.Logger
}

func NewCityService(llm TextGenerator, logger *slog.Logger) *CityService {
	return &CityService{llm: llm, logger: logger}
}

// NameCity returns a sanitized city name. Errors come straight from the
// generator (ErrConfiguration or ErrUpstream); the handler turns them into
// the FailedCityName response.
func (s *CityService) NameCity(ctx context.Context, metrics model.CityMetrics) (string, error) {
	text, err := s.llm.Complete(ctx, citySystemPrompt, CityPrompt(metrics))
	if err != nil {
		s.logger.Warn("city naming failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("service/city: %w", err)
	}

	name := SanitizeCityName(text)
	if name == "" {
		s.logger.Info("city naming returned no usable text", slog.String("raw", text))
		return FallbackCityName, nil
	}
	return name, nil
}

// CityPrompt renders the user message for the given metrics.
func CityPrompt(m model.CityMetrics) string {
	return fmt.Sprintf("지표: CO2=%st, 시민만족도=%s, 예산=%d\n도시 특징 태그: %s\n도시 이름 1개만 답하라.",
		strconv.FormatFloat(m.CO2Tons, 'f', -1, 64),
		m.CitizenSatisfaction,
		m.Budget,
		strings.Join(m.TopTags, ", "),
	)
}

// SanitizeCityName removes all whitespace and straight or curly quotes.
func SanitizeCityName(text string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '‘', '’', '“', '”':
			return -1
		}
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
}
