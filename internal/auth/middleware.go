package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// CookieName is the session cookie set after sign-in.
const CookieName = "token"

type contextKey string

const profileIDKey contextKey = "profileID"

// RequireAuth rejects requests without a valid session with 401 and puts the
// profile id into the request context otherwise.
//
// Usage with Chi:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.RequireAuth(tokens))
//	    r.Post("/api/templates", h.Create)
//	})
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profileID, err := extractProfileID(r, tokens)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"success":false,"error":"valid authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithProfileID(r.Context(), profileID)))
		})
	}
}

// OptionalAuth attaches the profile id when a valid session is present and
// lets anonymous requests through unchanged. The public feed and template
// pages use it.
func OptionalAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if profileID, err := extractProfileID(r, tokens); err == nil {
				r = r.WithContext(WithProfileID(r.Context(), profileID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithProfileID returns a context carrying the signed-in profile id.
func WithProfileID(ctx context.Context, profileID string) context.Context {
	return context.WithValue(ctx, profileIDKey, profileID)
}

// ProfileIDFromContext returns the signed-in profile id, if any.
func ProfileIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(profileIDKey).(string)
	return id, ok && id != ""
}

// extractProfileID reads the session from the cookie, falling back to an
// "Authorization: Bearer" header for non-browser clients.
func extractProfileID(r *http.Request, tokens *TokenService) (string, error) {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return tokens.Validate(cookie.Value)
	}

	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") && token != "" {
		return tokens.Validate(strings.TrimSpace(token))
	}
	return "", errors.New("auth: no session")
}
