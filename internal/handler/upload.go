package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/devxboard/internal/storage"
)

// CoverPresigner issues upload URLs. *storage.CoverStore implements it.
type CoverPresigner interface {
	PresignCover(ctx context.Context, ownerID, filename, contentType string) (*storage.Upload, error)
}

type UploadHandler struct {
	covers CoverPresigner
	logger *slog.Logger
}

func NewUploadHandler(covers CoverPresigner, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{covers: covers, logger: logger}
}

type coverUploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
}

// Cover returns a presigned PUT URL for a template cover image. The browser
// uploads straight to the bucket and then saves PublicURL as cover_image.
//
// HTTP: POST /api/uploads/cover
func (h *UploadHandler) Cover(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireCaller(w, r, h.logger)
	if !ok {
		return
	}
	var req coverUploadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	up, err := h.covers.PresignCover(r.Context(), owner, req.Filename, req.ContentType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, http.StatusOK, up)
}
