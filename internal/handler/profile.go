package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/service"
)

type ProfileHandler struct {
	profiles *service.ProfileService
	logger   *slog.Logger
}

func NewProfileHandler(profiles *service.ProfileService, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// Me returns the signed-in profile, email included.
//
// HTTP: GET /api/me
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	p, err := h.profiles.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

type updateProfileRequest struct {
	Username string `json:"username"`
	Pic      string `json:"pic"`
}

// UpdateMe changes the signed-in user's username and avatar.
//
// HTTP: PUT /api/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	id, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.profiles.Update(r.Context(), id, req.Username, req.Pic)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// ByUsername returns a public profile.
//
// HTTP: GET /api/profiles/{username}
func (h *ProfileHandler) ByUsername(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetPublic(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// Search lists profiles whose username starts with q, for share
// autocomplete.
//
// HTTP: GET /api/profiles?q=&limit=
func (h *ProfileHandler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 10)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	profiles, err := h.profiles.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "profiles", profiles)
}

// CheckUsername reports whether a username is free.
//
// HTTP: GET /api/profiles/check?username=
func (h *ProfileHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	available, err := h.profiles.UsernameAvailable(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"available": available})
}
