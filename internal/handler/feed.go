package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/devxboard/internal/model"
	"github.com/sakif/devxboard/internal/service"
)

type FeedHandler struct {
	feed   *service.FeedService
	logger *slog.Logger
}

func NewFeedHandler(feed *service.FeedService, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

type feedResponse struct {
	Success   bool              `json:"success"`
	Templates []model.FeedEntry `json:"templates"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
	HasMore   bool              `json:"has_more"`
}

// List returns one page of the community feed.
//
// HTTP: GET /api/feed?page=&page_size=&filter=&q=
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 0)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	size, err := intQuery(r, "page_size", service.DefaultFeedPageSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	page = max(page, 0)
	if size <= 0 {
		size = service.DefaultFeedPageSize
	}
	size = min(size, service.MaxFeedPageSize)

	q := r.URL.Query()
	entries, err := h.feed.List(r.Context(), service.FeedQuery{
		ViewerID: caller(r),
		Page:     page,
		PageSize: size,
		Filter:   model.FeedFilter(q.Get("filter")),
		Search:   q.Get("q"),
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, feedResponse{
		Success:   true,
		Templates: entries,
		Page:      page,
		PageSize:  size,
		HasMore:   len(entries) == size,
	})
}
