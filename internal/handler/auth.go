package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/devxboard/internal/auth"
	"github.com/sakif/devxboard/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler drives the GitHub sign-in flow and the session cookie.
//
//   - Login    → redirect the browser to GitHub's authorization page
//   - Callback → check state, exchange the code, sign in, set the cookie
//   - Logout   → clear the cookie
type AuthHandler struct {
	provider   auth.IdentityProvider
	auth       *service.AuthService
	tokens     *auth.TokenService
	redirectTo string
	secure     bool
	logger     *slog.Logger
}

// NewAuthHandler creates an AuthHandler. redirectTo is where the browser
// lands after sign-in; secure marks cookies HTTPS-only.
func NewAuthHandler(
	provider auth.IdentityProvider,
	authService *service.AuthService,
	tokens *auth.TokenService,
	redirectTo string,
	secure bool,
	logger *slog.Logger,
) *AuthHandler {
	if redirectTo == "" {
		redirectTo = "/"
	}
	return &AuthHandler{
		provider:   provider,
		auth:       authService,
		tokens:     tokens,
		redirectTo: redirectTo,
		secure:     secure,
		logger:     logger,
	}
}

// Login redirects to GitHub. A random state is kept in a short-lived cookie
// and compared on the callback.
//
// HTTP: GET /auth/github/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback completes the sign-in.
//
// HTTP: GET /auth/github/callback?code=&state=
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, h.redirectTo+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.auth.SignIn(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: sign-in failed",
			slog.Int64("github_id", ghUser.ID),
			slog.String("error", err.Error()),
		)
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    res.Token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.redirectTo, http.StatusSeeOther)
}

// Logout clears the session cookie. The JWT itself stays valid until it
// expires.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	writeMessage(w, http.StatusOK, "logged out")
}
