package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError so that all
// endpoints share one error shape:
//
//	{"error": "user_not_found", "message": "user not found with id 42", "detail": "..."}
//
// "error" is a machine-readable code, "message" is for humans and "detail"
// (optional) carries a third party's raw payload, e.g. Kakao's token error.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sakif/ecocity-backend/internal/apperror"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
// Headers must be set before WriteHeader; anything set afterwards is ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// errorStatus maps a domain error to its HTTP status and response body.
//
// errors.Is walks the whole chain, so a service can wrap an AppError with
// fmt.Errorf("service/x: ...: %w", err) and still get the right status.
// Errors that are not AppErrors are internal: the client gets a generic
// message and never sees SQL or file paths.
func errorStatus(err error) (int, ErrorResponse) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		}
	}

	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUpstream):
		status, code = http.StatusBadRequest, "upstream_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		status, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrConfiguration):
		status, code = http.StatusInternalServerError, "configuration_error"
	}

	if appErr.Code != "" {
		code = appErr.Code
	}

	return status, ErrorResponse{
		Error:   code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}
}

// writeError maps err to a status code and sends the standard error body.
func writeError(w http.ResponseWriter, err error) {
	status, body := errorStatus(err)
	writeJSON(w, status, body)
}

// logFailure logs server-side failures. Client errors (4xx) are the
// caller's problem and are only logged at debug level.
func logFailure(logger *slog.Logger, msg string, err error) {
	status, _ := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error(msg, slog.String("error", err.Error()))
		return
	}
	logger.Debug(msg, slog.String("error", err.Error()), slog.Int("status", status))
}

// decodeJSON reads a JSON request body into dst. A missing, oversized or
// malformed body is a validation error.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		return apperror.ValidationFailed("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}
