package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/ecocity-backend/internal/apperror"
	"github.com/sakif/ecocity-backend/internal/auth"
	"github.com/sakif/ecocity-backend/internal/model"
	"github.com/sakif/ecocity-backend/internal/service"
)

// CookieOptions controls the token cookies set by the Kakao callback.
type CookieOptions struct {
	// Secure is off only in DEBUG, where the game talks plain HTTP to
	// localhost.
	Secure     bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthHandler serves the /users routes.
//
// HANDLER RESPONSIBILITIES:
//   - HandleKakaoLogin    → hand out the Kakao authorize URL
//   - HandleKakaoCallback → finish the login, return tokens as JSON + cookies
//   - HandleTokenLogin    → username/password login (admin accounts)
//   - HandleRefresh       → refresh token → new access token
//   - HandleMe            → current user's profile
//   - HandleLogout        → blacklist the refresh token, clear cookies
type AuthHandler struct {
	auth    *service.AuthService
	cookies CookieOptions
	logger  *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, cookies CookieOptions, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:    svc,
		cookies: cookies,
		logger:  logger,
	}
}

type loginResponse struct {
	User    *model.User     `json:"user"`
	Message string          `json:"message"` // "register" on first login, "login" afterwards
	Token   model.TokenPair `json:"token"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	Refresh string `json:"refresh"`
}

// HandleKakaoLogin returns the URL the game should open.
//
// HTTP: GET /users/kakao/login/
func (h *AuthHandler) HandleKakaoLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.auth.StartLogin(r.Context())
	if err != nil {
		logFailure(h.logger, "kakao login start failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"auth_url": authURL})
}

// HandleKakaoCallback completes the login.
//
// HTTP: GET /users/kakao/callback/?code=xxx&state=yyy
//
// Kakao redirects here with ?error=access_denied when the user declines
// consent; that is reported as a 400 without touching any state.
func (h *AuthHandler) HandleKakaoCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" {
		h.logger.Info("kakao callback: authorization denied", slog.String("error", errParam))
		writeError(w, &apperror.AppError{
			Err:     apperror.ErrValidation,
			Message: "kakao authorization was not granted",
			Code:    errParam,
			Detail:  q.Get("error_description"),
		})
		return
	}

	res, err := h.auth.CompleteLogin(r.Context(), q.Get("code"), q.Get("state"))
	if err != nil {
		logFailure(h.logger, "kakao callback failed", err)
		writeError(w, err)
		return
	}

	h.setTokenCookies(w, res.Tokens)

	message := "login"
	if res.Created {
		message = "register"
	}
	writeJSON(w, http.StatusOK, loginResponse{
		User:    res.User,
		Message: message,
		Token:   res.Tokens,
	})
}

// HandleTokenLogin issues a token pair for a password account.
//
// HTTP: POST /users/login/  {"username": "...", "password": "..."}
func (h *AuthHandler) HandleTokenLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	pair, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		logFailure(h.logger, "token login failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

// HandleRefresh mints a new access token.
//
// HTTP: POST /users/token/refresh/  {"refresh": "..."}
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	access, err := h.auth.Refresh(r.Context(), req.Refresh)
	if err != nil {
		logFailure(h.logger, "token refresh failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

// HandleMe returns the authenticated user's profile.
//
// HTTP: GET /users/profile/
// Auth: Required (RequireAuth middleware sets userID in context)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		logFailure(h.logger, "profile lookup failed", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout blacklists the caller's refresh token and clears both cookies.
//
// HTTP: POST /users/logout/  {"refresh": "..."}  (body optional)
// Auth: Required
//
// The refresh token comes from the body or, failing that, the refreshToken
// cookie. The body may be empty when the cookie is used.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON"))
		return
	}

	refresh := req.Refresh
	if refresh == "" {
		if c, err := r.Cookie(auth.RefreshTokenCookie); err == nil {
			refresh = c.Value
		}
	}
	if refresh == "" {
		writeError(w, apperror.ValidationFailed("refresh", "refresh token is required"))
		return
	}

	callerID, _ := auth.UserIDFromContext(r.Context())
	if err := h.auth.Logout(r.Context(), callerID, refresh); err != nil {
		logFailure(h.logger, "logout failed", err)
		writeError(w, err)
		return
	}

	h.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// setTokenCookies stores both tokens in HttpOnly cookies.
// SameSite=None lets the WebGL build on another origin send them back;
// browsers only accept SameSite=None together with Secure.
func (h *AuthHandler) setTokenCookies(w http.ResponseWriter, pair model.TokenPair) {
	h.setCookie(w, auth.AccessTokenCookie, pair.Access, int(h.cookies.AccessTTL.Seconds()))
	h.setCookie(w, auth.RefreshTokenCookie, pair.Refresh, int(h.cookies.RefreshTTL.Seconds()))
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	h.setCookie(w, auth.AccessTokenCookie, "", -1)
	h.setCookie(w, auth.RefreshTokenCookie, "", -1)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteNoneMode,
	})
}
