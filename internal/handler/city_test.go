package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sakif/ecocity-backend/internal/llm"
	"github.com/sakif/ecocity-backend/internal/service"
)

func newCityHandler(client *llm.Client) *CityHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCityHandler(service.NewCityService(client, logger), logger)
}

const cityBody = `{"co2Tons": 5, "citizenSatisfaction": "good", "budget": 1000, "topTags": ["green", "solar"]}`

func TestNameCity(t *testing.T) {
	h := newCityHandler(newTestLLM(t, "“초록 솔라”"))

	rr := do(t, h.HandleNameCity, http.MethodPost, "/name-city", cityBody)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cityName": "초록솔라"}`, rr.Body.String())
}

func TestNameCity_EmptyReplyUsesFallback(t *testing.T) {
	h := newCityHandler(newTestLLM(t, "  "))

	rr := do(t, h.HandleNameCity, http.MethodPost, "/name-city", cityBody)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"cityName": "이름생성실패"}`, rr.Body.String())
}

func TestNameCity_MissingAPIKey(t *testing.T) {
	h := newCityHandler(llm.New(llm.Config{}))

	rr := do(t, h.HandleNameCity, http.MethodPost, "/name-city", cityBody)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	var body cityNameResponse
	decode(t, rr, &body)
	assert.Equal(t, "에러", body.CityName)
	assert.Equal(t, "configuration_error", body.Error)
	assert.Contains(t, body.Detail, "OPENAI_API_KEY")
}

func TestNameCity_BadBody(t *testing.T) {
	h := newCityHandler(llm.New(llm.Config{}))

	rr := do(t, h.HandleNameCity, http.MethodPost, "/name-city", `{"co2Tons": "lots"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body cityNameResponse
	decode(t, rr, &body)
	assert.Equal(t, "에러", body.CityName)
	assert.Equal(t, "validation_error", body.Error)
}
