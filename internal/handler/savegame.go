package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/service"
)

// SaveGameHandler serves save-game, load-game and check-saved-data.
//
// None of these routes take a bearer token: the game identifies the player
// by the Kakao id it got at login ("userId"), sent in the body for saves
// and in the query string for reads.
type SaveGameHandler struct {
	saves  *service.SaveGameService
	logger *slog.Logger
}

func NewSaveGameHandler(saves *service.SaveGameService, logger *slog.Logger) *SaveGameHandler {
	return &SaveGameHandler{saves: saves, logger: logger}
}

// flexibleID is a user id that the client may send as a JSON string or
// number. Unity's serializer emits Kakao ids as numbers, the web build as
// strings.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("userId must be a string or a number")
	}
	*f = flexibleID(n.String())
	return nil
}

type saveRequest struct {
	UserID              flexibleID `json:"userId"`
	CO2Tons             float64    `json:"co2Tons"`
	CitizenSatisfaction string     `json:"citizenSatisfaction"`
	Budget              int64      `json:"budget"`
	TopTags             []string   `json:"topTags"`
	AICityName          string     `json:"aiCityName"`
}

type saveResponse struct {
	Message string `json:"message"`
	Created bool   `json:"created"`
}

// existsResponse keeps "exists" present on errors too, so the client can
// always read it.
type existsResponse struct {
	Exists  bool   `json:"exists"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// HandleSave overwrites the player's snapshot.
//
// HTTP: POST /save-game/
func (h *SaveGameHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := h.saves.Save(r.Context(), string(req.UserID), &model.SaveGame{
		CO2Tons:             req.CO2Tons,
		CitizenSatisfaction: req.CitizenSatisfaction,
		Budget:              req.Budget,
		TopTags:             req.TopTags,
		AICityName:          req.AICityName,
	})
	if err != nil {
		logFailure(h.logger, "save game failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saveResponse{Message: "game data saved", Created: created})
}

// HandleLoad returns the player's snapshot.
//
// HTTP: GET /load-game/?userId=...
func (h *SaveGameHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	save, err := h.saves.Load(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		logFailure(h.logger, "load game failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, save)
}

// HandleExists reports whether the player has a snapshot.
//
// HTTP: GET /check-saved-data/?userId=...
func (h *SaveGameHandler) HandleExists(w http.ResponseWriter, r *http.Request) {
	ok, err := h.saves.Exists(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		logFailure(h.logger, "check saved data failed", err)
		status, body := errorStatus(err)
		writeJSON(w, status, existsResponse{Error: body.Error, Message: body.Message})
		return
	}

	writeJSON(w, http.StatusOK, existsResponse{Exists: ok})
}
