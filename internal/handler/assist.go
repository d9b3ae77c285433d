package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/service"
)

// AssistHandler exposes the text and code correction helpers.
type AssistHandler struct {
	assist *service.AssistService
	logger *slog.Logger
}

func NewAssistHandler(assist *service.AssistService, logger *slog.Logger) *AssistHandler {
	return &AssistHandler{assist: assist, logger: logger}
}

type correctTextRequest struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// CorrectText proofreads a title and subtitle.
//
// HTTP: POST /api/assist/text
func (h *AssistHandler) CorrectText(w http.ResponseWriter, r *http.Request) {
	var req correctTextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	out, err := h.assist.CorrectText(r.Context(), req.Title, req.Subtitle)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, out)
}

type correctCodeRequest struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// CorrectCode returns a fixed version of a snippet.
//
// HTTP: POST /api/assist/code
func (h *AssistHandler) CorrectCode(w http.ResponseWriter, r *http.Request) {
	var req correctCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	code, err := h.assist.CorrectCode(r.Context(), req.Code, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"code": code})
}

// CorrectBlock corrects one block of the caller's template and stores the
// result.
//
// HTTP: POST /api/templates/{id}/blocks/{index}/correct
func (h *AssistHandler) CorrectBlock(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	index, err := intParam(r, "index")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	block, err := h.assist.CorrectBlock(r.Context(), chi.URLParam(r, "id"), owner, index)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, block)
}
