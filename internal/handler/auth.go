package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/schoolquest/internal/apperror"
	"github.com/sakif/schoolquest/internal/auth"
	"github.com/sakif/schoolquest/internal/service"
)

const stateCookie = "oauth_state"

// OAuthProvider is the part of auth.GoogleProvider the handler needs.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.GoogleUser, error)
}

var _ OAuthProvider = (*auth.GoogleProvider)(nil)

// AuthHandler manages the Google OAuth login flow and session management.
//
// HANDLER RESPONSIBILITIES:
//   - HandleGoogleLogin    → redirect the browser to Google's consent page
//   - HandleGoogleCallback → receive the code, sign the user in, set the JWT cookie
//   - HandleLogout         → clear the JWT cookie
//   - HandleMe             → return the session of the logged-in user
//   - HandleToken          → hand a bearer token to the terminal client
type AuthHandler struct {
	google OAuthProvider
	auth   *service.AuthService
	tokens *auth.TokenService
	secure bool
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler. secure marks cookies HTTPS-only.
func NewAuthHandler(
	google OAuthProvider,
	authSvc *service.AuthService,
	tokens *auth.TokenService,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		google: google,
		auth:   authSvc,
		tokens: tokens,
		secure: secure,
		logger: logger,
	}
}

// HandleGoogleLogin redirects the user to Google.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and echoed back
// by Google; the callback only proceeds when the two match.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the OAuth login flow.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the Google profile
//  3. Sign in through AuthService (domain check, upsert, login event, JWT)
//  4. Store the JWT in an HttpOnly cookie
//  5. Redirect to the dashboard
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gu, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: Google exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	res, err := h.auth.LoginWithGoogle(r.Context(), gu)
	if err != nil {
		if errors.Is(err, apperror.ErrForbidden) {
			http.Redirect(w, r, "/?auth=forbidden", http.StatusSeeOther)
			return
		}
		h.logger.Error("auth callback: sign-in failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, res.Token, int(auth.DefaultTokenTTL.Seconds()))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless, so the token stays valid until it expires; the
// browser simply stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setSessionCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe returns the session of the authenticated user.
//
// HTTP: GET /api/me → {"user": {"email", "name", "image"}}
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}

	user, err := h.auth.GetUserByID(r.Context(), id.UserID)
	if err != nil {
		logFailure(h.logger, "HandleMe: user lookup failed", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Session())
}

// HandleToken issues a fresh bearer token for the caller. The terminal
// client cannot read the HttpOnly cookie, so students copy this value into
// QUEST_TOKEN.
//
// HTTP: GET /api/token
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("authentication required"))
		return
	}
	token, err := h.tokens.Generate(id)
	if err != nil {
		h.logger.Error("HandleToken: token generation failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
