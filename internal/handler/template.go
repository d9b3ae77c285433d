package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/service"
)

// TemplateHandler serves template CRUD and the sharing views.
type TemplateHandler struct {
	templates *service.TemplateService
	sharing   *service.SharingService
	logger    *slog.Logger
}

func NewTemplateHandler(templates *service.TemplateService, sharing *service.SharingService, logger *slog.Logger) *TemplateHandler {
	return &TemplateHandler{templates: templates, sharing: sharing, logger: logger}
}

type blockRequest struct {
	Description string `json:"description"`
	Code        string `json:"code"`
}

type templateRequest struct {
	TemplateID string           `json:"template_id"`
	UserID     string           `json:"user_id"`
	Title      string           `json:"title"`
	Subtitle   string           `json:"subtitle"`
	CoverImage string           `json:"cover_image"`
	Visibility model.Visibility `json:"visibility"`
	Blocks     []blockRequest   `json:"blocks"`
	SharedWith []string         `json:"shared_with"`
	// Older clients send the share list under this name.
	SharedUsernames []string `json:"sharedUsernames"`
}

func (req templateRequest) input() service.TemplateInput {
	blocks := make([]model.CodeBlock, len(req.Blocks))
	for i, b := range req.Blocks {
		blocks[i] = model.CodeBlock{Description: b.Description, Code: b.Code}
	}
	shared := req.SharedWith
	if shared == nil {
		shared = req.SharedUsernames
	}
	return service.TemplateInput{
		Title:      req.Title,
		Subtitle:   req.Subtitle,
		CoverImage: req.CoverImage,
		Visibility: req.Visibility,
		Blocks:     blocks,
		SharedWith: shared,
	}
}

// Save creates a template, or updates one when template_id is set.
//
// HTTP: POST /api/templates
func (h *TemplateHandler) Save(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !checkClaimedUser(w, h.logger, owner, req.UserID) {
		return
	}

	if req.TemplateID != "" {
		t, err := h.templates.Update(r.Context(), req.TemplateID, owner, req.input())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeData(w, http.StatusOK, t)
		return
	}

	t, err := h.templates.Create(r.Context(), owner, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, t)
}

// Update replaces a template's content and share list.
//
// HTTP: PUT /api/templates/{id}
func (h *TemplateHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req templateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !checkClaimedUser(w, h.logger, owner, req.UserID) {
		return
	}
	t, err := h.templates.Update(r.Context(), chi.URLParam(r, "id"), owner, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// Delete removes a template. Deleting a missing template succeeds.
//
// HTTP: DELETE /api/templates/{id}
func (h *TemplateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.templates.Delete(r.Context(), chi.URLParam(r, "id"), owner); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "template deleted")
}

// Get returns one template if the caller may see it.
//
// HTTP: GET /api/templates/{id}
func (h *TemplateHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.templates.Get(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, t)
}

// Mine lists the caller's private, unshared templates.
//
// HTTP: GET /api/templates/mine
func (h *TemplateHandler) Mine(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	if !checkClaimedUser(w, h.logger, owner, r.URL.Query().Get("user_id")) {
		return
	}
	templates, err := h.templates.Mine(r.Context(), owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "templates", emptyIfNil(templates))
}

type sharesRequest struct {
	SharedWith      []string `json:"shared_with"`
	SharedUsernames []string `json:"sharedUsernames"`
}

// ReplaceShares sets the template's share list and nothing else.
//
// HTTP: PUT /api/templates/{id}/shares
func (h *TemplateHandler) ReplaceShares(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req sharesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	entries := req.SharedWith
	if entries == nil {
		entries = req.SharedUsernames
	}
	grantees, err := h.sharing.ReplaceShares(r.Context(), chi.URLParam(r, "id"), owner, entries)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if grantees == nil {
		grantees = []*model.PublicProfile{}
	}
	writeCollection(w, "shared_with", grantees)
}

// SharedByMe lists the caller's templates that have at least one grant.
//
// HTTP: GET /api/templates/shared-by-me
func (h *TemplateHandler) SharedByMe(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	templates, err := h.sharing.SharedByMe(r.Context(), owner)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "templates", emptyIfNil(templates))
}

// SharedWithMe lists private templates other users shared with the caller.
//
// HTTP: GET /api/templates/shared-with-me
func (h *TemplateHandler) SharedWithMe(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	templates, err := h.sharing.SharedWithMe(r.Context(), viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "templates", emptyIfNil(templates))
}

// emptyIfNil makes empty lists encode as [] rather than null.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
