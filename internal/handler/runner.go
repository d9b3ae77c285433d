package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devxboard/internal/service"
)

type RunnerHandler struct {
	runner *service.RunnerService
	logger *slog.Logger
}

func NewRunnerHandler(runner *service.RunnerService, logger *slog.Logger) *RunnerHandler {
	return &RunnerHandler{runner: runner, logger: logger}
}

// RunBlock runs one code block in the sandbox. ?corrected=true runs the
// assistant's corrected version when there is one.
//
// HTTP: POST /api/templates/{id}/blocks/{index}/run
//
// A non-zero exit code or a timeout is still a 200: the program ran and its
// result is in the body.
func (h *RunnerHandler) RunBlock(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r, "index")
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	corrected := r.URL.Query().Get("corrected") == "true"

	res, err := h.runner.RunBlock(r.Context(), chi.URLParam(r, "id"), index, caller(r), corrected)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
