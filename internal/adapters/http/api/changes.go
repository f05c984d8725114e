package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	service "github.com/okian/campusfeed/internal/app"
	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
)

// ChangeDependencies defines the write operations behind the change routes.
type ChangeDependencies interface {
	Notify(ctx context.Context, c model.Change) (service.Receipt, error)
	Refresh(ctx context.Context) error
}

// changeRequest is the body of POST /changes.
type changeRequest struct {
	ID    string `json:"id"`
	Table string `json:"table"`
	Op    string `json:"op"`
	RowID string `json:"row_id"`
	TS    string `json:"ts"`
}

func (c changeRequest) toChange() (model.Change, error) {
	change := model.Change{
		ID:    strings.TrimSpace(c.ID),
		Table: model.Table(strings.ToLower(strings.TrimSpace(c.Table))),
		Op:    model.Op(strings.ToLower(strings.TrimSpace(c.Op))),
		RowID: strings.TrimSpace(c.RowID),
	}
	if c.TS != "" {
		ts, err := time.Parse(time.RFC3339, c.TS)
		if err != nil {
			return model.Change{}, fmt.Errorf("%w: invalid ts; must be RFC3339", ErrBadRequest)
		}
		change.TS = ts
	}
	return change, nil
}

type ackResponse struct {
	Status    string `json:"status"`
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// ChangesHandler handles change notifications.
type ChangesHandler struct {
	deps   ChangeDependencies
	logger logger.Logger
}

// NewChangesHandler creates a new changes handler.
func NewChangesHandler(deps ChangeDependencies, log logger.Logger) *ChangesHandler {
	return &ChangesHandler{deps: deps, logger: log}
}

// HandlePostChange handles POST /changes requests.
func (h *ChangesHandler) HandlePostChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Errorf("%w: %v", ErrBadRequest, err))
		return
	}
	change, err := req.toChange()
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err)
		return
	}

	receipt, err := h.deps.Notify(r.Context(), change)
	if err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}
	if receipt.Duplicate {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", ID: receipt.ID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: receipt.ID})
}

// HandleRefresh handles POST /refresh requests.
func (h *ChangesHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Refresh(r.Context()); err != nil {
		writeServiceError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "refreshed"})
}
