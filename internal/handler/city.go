package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/service"
)

// CityHandler proxies city naming to the language model.
type CityHandler struct {
	cities *service.CityService
	logger *slog.Logger
}

func NewCityHandler(cities *service.CityService, logger *slog.Logger) *CityHandler {
	return &CityHandler{cities: cities, logger: logger}
}

type cityNameResponse struct {
	CityName string `json:"cityName"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// HandleNameCity names the city from its metrics.
//
// HTTP: POST /name-city  {"co2Tons": 5, "citizenSatisfaction": "good", "budget": 1000, "topTags": [...]}
//
// The game always renders cityName, so failures still carry one
// (service.FailedCityName). A missing API key and a failed model call are
// both 500s here; only a malformed body is the client's fault.
func (h *CityHandler) HandleNameCity(w http.ResponseWriter, r *http.Request) {
	var metrics model.CityMetrics
	if err := decodeJSON(w, r, &metrics); err != nil {
		status, body := errorStatus(err)
		writeJSON(w, status, cityNameResponse{
			CityName: service.FailedCityName,
			Error:    body.Error,
			Detail:   body.Message,
		})
		return
	}

	name, err := h.cities.NameCity(r.Context(), metrics)
	if err != nil {
		h.logger.Error("name city failed", slog.String("error", err.Error()))

		_, body := errorStatus(err)
		detail := body.Message
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && appErr.Detail != "" {
			detail = appErr.Error()
		}
		writeJSON(w, http.StatusInternalServerError, cityNameResponse{
			CityName: service.FailedCityName,
			Error:    body.Error,
			Detail:   detail,
		})
		return
	}

	writeJSON(w, http.StatusOK, cityNameResponse{CityName: name})
}
