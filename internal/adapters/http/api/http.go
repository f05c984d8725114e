// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	service "github.com/okian/campusfeed/internal/app"
	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
)

const defaultMaxFeedLimit = 100

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Feed(ctx context.Context, viewerID string, limit int) ([]model.RankedPost, error)
	Explain(ctx context.Context, viewerID, postID string) (service.Explanation, error)
	Notify(ctx context.Context, c model.Change) (service.Receipt, error)
	Refresh(ctx context.Context) error
	GetStats(ctx context.Context) service.Stats
}

// Server wires HTTP routes for the feed API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	feedHandler    *FeedHandler
	changesHandler *ChangesHandler

	maxFeedLimit int
	limiter      *rate.Limiter
	logger       logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		maxFeedLimit: defaultMaxFeedLimit,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.feedHandler = NewFeedHandler(deps, s.maxFeedLimit, s.logger)
	s.changesHandler = NewChangesHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r *mux.Router) {
	r.Use(MetricsMiddleware)
	r.Use(RateLimitMiddleware(s.limiter, "/healthz"))

	r.HandleFunc("/healthz", s.healthHandler.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.statsHandler.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/feed/{viewer_id}", s.feedHandler.HandleGetFeed).Methods(http.MethodGet)
	r.HandleFunc("/feed/{viewer_id}/explain/{post_id}", s.feedHandler.HandleExplain).Methods(http.MethodGet)
	r.HandleFunc("/changes", s.changesHandler.HandlePostChange).Methods(http.MethodPost)
	r.HandleFunc("/refresh", s.changesHandler.HandleRefresh).Methods(http.MethodPost)
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates err with statusFor. Server errors are logged.
func writeServiceError(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(ctx, "request failed", logger.Int("status", status), logger.Error(err))
	}
	writeError(w, status, code, err)
}
