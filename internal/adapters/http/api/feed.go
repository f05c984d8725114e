package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	service "github.com/okian/campusfeed/internal/app"
	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
)

// FeedDependencies defines the read operations behind the feed routes.
type FeedDependencies interface {
	Feed(ctx context.Context, viewerID string, limit int) ([]model.RankedPost, error)
	Explain(ctx context.Context, viewerID, postID string) (service.Explanation, error)
}

// FeedHandler handles feed requests.
type FeedHandler struct {
	deps     FeedDependencies
	maxLimit int
	logger   logger.Logger
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(deps FeedDependencies, maxLimit int, log logger.Logger) *FeedHandler {
	return &FeedHandler{deps: deps, maxLimit: maxLimit, logger: log}
}

// HandleGetFeed handles GET /feed/{viewer_id}?limit=N requests.
func (h *FeedHandler) HandleGetFeed(w http.ResponseWriter, r *http.Request) {
	viewerID := mux.Vars(r)["viewer_id"]
	limit, err := h.parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}
	feed, err := h.deps.Feed(r.Context(), viewerID, limit)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

// HandleExplain handles GET /feed/{viewer_id}/explain/{post_id} requests.
func (h *FeedHandler) HandleExplain(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	exp, err := h.deps.Explain(r.Context(), vars["viewer_id"], vars["post_id"])
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// parseLimit accepts 1..maxLimit; an empty value means maxLimit.
func (h *FeedHandler) parseLimit(raw string) (int, error) {
	if raw == "" {
		return h.maxLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: limit must be an integer", ErrBadRequest)
	}
	if n < 1 || n > h.maxLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, h.maxLimit)
	}
	return n, nil
}
