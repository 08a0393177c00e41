package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/livecanvas/internal/apperror"
	"github.com/sakif/livecanvas/internal/auth"
	"github.com/sakif/livecanvas/internal/service"
)

const stateCookie = "lc_oauth_state"

// AuthHandler signs learners in and out.
//
//   - HandleGitHubLogin    redirect to GitHub's consent page
//   - HandleGitHubCallback exchange the code, upsert the user, set the cookie
//   - HandleRegister       create a local account
//   - HandleLogin          check a local password
//   - HandleLogout         clear the cookie
//   - HandleMe             the signed-in learner's profile
//
// The JWT travels in an HttpOnly cookie that lives as long as the token.
type AuthHandler struct {
	auth     *service.AuthService
	github   *auth.GitHubProvider // nil when GitHub login is not configured
	tokenTTL time.Duration
	secure   bool
	logger   *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, github *auth.GitHubProvider, tokenTTL time.Duration, secure bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: svc, github: github, tokenTTL: tokenTTL, secure: secure, logger: logger}
}

// HandleGitHubLogin sends the browser to GitHub.
//
// HTTP: GET /auth/github/login
//
// The random state goes into a short-lived cookie and comes back on the
// callback; a mismatch means the callback was not started here.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "GitHub sign-in is not configured"})
		return
	}
	state, err := auth.NewState()
	if err != nil {
		h.logger.Error("generating oauth state", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/github",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback finishes the GitHub flow and sets the cookie.
//
// HTTP: GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		http.NotFound(w, r)
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("oauth callback with bad state")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/github", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("user denied GitHub authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}
	result, err := h.auth.LoginOrRegisterGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("GitHub sign-in failed", slog.Int64("githubID", ghUser.ID), slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setToken(w, result.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type credentials struct {
	Login    string `json:"login"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// HandleRegister creates a local account and signs it in.
//
// HTTP: POST /auth/register  {"login", "email", "password"}  ->  201 user
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.auth.Register(r.Context(), req.Login, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.setToken(w, result.Token)
	writeJSON(w, http.StatusCreated, result.User)
}

// HandleLogin checks a local password.
//
// HTTP: POST /auth/login  {"login", "password"}  ->  200 user, or 401
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := h.auth.Login(r.Context(), req.Login, req.Password)
	if errors.Is(err, apperror.ErrForbidden) {
		// Wrong credentials are "who are you?", not "you may not".
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: err.Error()})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	h.setToken(w, result.Token)
	writeJSON(w, http.StatusOK, result.User)
}

// HandleLogout deletes the cookie. The token itself stays valid until it
// expires; without the cookie the browser just stops sending it.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the signed-in learner's profile.
//
// HTTP: GET /api/me  (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "not signed in"})
		return
	}
	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Warn("token for unknown user", slog.String("userID", userID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setToken(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
