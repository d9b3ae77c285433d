package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/service"
)

type EngagementHandler struct {
	engagement *service.EngagementService
	logger     *slog.Logger
}

func NewEngagementHandler(engagement *service.EngagementService, logger *slog.Logger) *EngagementHandler {
	return &EngagementHandler{engagement: engagement, logger: logger}
}

// engageRequest is accepted for clients that still send user_id; it must
// match the caller.
type engageRequest struct {
	UserID string `json:"user_id"`
}

func (h *EngagementHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := requireCaller(w, r, h.logger)
	if !ok {
		return "", false
	}
	var req engageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return "", false
	}
	return userID, checkClaimedUser(w, h.logger, userID, req.UserID)
}

// ToggleLike flips the caller's like and reports the new state.
//
// HTTP: POST /api/templates/{id}/like
func (h *EngagementHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	liked, err := h.engagement.ToggleLike(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"liked": liked})
}

// ToggleSave flips the caller's bookmark and reports the new state.
//
// HTTP: POST /api/templates/{id}/save
func (h *EngagementHandler) ToggleSave(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.actor(w, r)
	if !ok {
		return
	}
	saved, err := h.engagement.ToggleSave(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"saved": saved})
}

// ListComments returns a template's comments, newest first.
//
// HTTP: GET /api/templates/{id}/comments
func (h *EngagementHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.engagement.ListComments(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "comments", emptyIfNil(comments))
}

type commentRequest struct {
	UserID  string `json:"user_id"`
	Comment string `json:"comment"`
}

// AddComment posts a comment as the caller.
//
// HTTP: POST /api/templates/{id}/comments
func (h *EngagementHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req commentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !checkClaimedUser(w, h.logger, userID, req.UserID) {
		return
	}
	c, err := h.engagement.AddComment(r.Context(), chi.URLParam(r, "id"), userID, req.Comment)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

// DeleteComment removes a comment. Its author and the template's owner may
// delete it.
//
// HTTP: DELETE /api/comments/{id}
func (h *EngagementHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.engagement.DeleteComment(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "comment deleted")
}
