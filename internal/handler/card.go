package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/service"
)

// CardHandler serves the caller's URL cards.
type CardHandler struct {
	cards  *service.CardService
	logger *slog.Logger
}

func NewCardHandler(cards *service.CardService, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

type cardRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (req cardRequest) input() service.CardInput {
	return service.CardInput{URL: req.URL, Title: req.Title, Description: req.Description, Image: req.Image}
}

// HTTP: GET /api/cards?limit=&offset=
func (h *CardHandler) List(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	limit, err := intQuery(r, "limit", 50)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	cards, err := h.cards.List(r.Context(), owner, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeCollection(w, "cards", emptyIfNil(cards))
}

// HTTP: POST /api/cards
func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.cards.Create(r.Context(), owner, req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

// HTTP: PUT /api/cards/{id}
func (h *CardHandler) Update(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.cards.Update(r.Context(), owner, chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// HTTP: DELETE /api/cards/{id}
func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.cards.Delete(r.Context(), owner, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeMessage(w, http.StatusOK, "card deleted")
}

// Unfurl previews what a card for the URL would contain without storing it.
//
// HTTP: POST /api/cards/unfurl
func (h *CardHandler) Unfurl(w http.ResponseWriter, r *http.Request) {
	var req cardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	md, err := h.cards.Preview(r.Context(), req.URL)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, md)
}
