// Package service wires the data sources, the ranker, the feed cache and the
// change pipeline into the operations the HTTP API and the CLI call.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/okian/campusfeed/internal/adapters/cache"
	"github.com/okian/campusfeed/internal/adapters/mq/queue"
	"github.com/okian/campusfeed/internal/adapters/mq/worker"
	"github.com/okian/campusfeed/internal/adapters/repository"
	"github.com/okian/campusfeed/internal/domain/dedupe"
	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/internal/domain/ranking"
	"github.com/okian/campusfeed/pkg/logger"
	"github.com/okian/campusfeed/pkg/metrics"
)

// Default service settings.
const (
	defaultQueueSize     = 10_000
	defaultDedupeSize    = 100_000
	defaultCacheTTL      = 30 * time.Second
	defaultInvalidateRPS = 5
	shutdownTimeout      = 10 * time.Second
)

// Receipt acknowledges a change notification.
type Receipt struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// Explanation is the score breakdown of one post for one viewer.
type Explanation struct {
	PostID    string            `json:"post_id"`
	ClubID    string            `json:"club_id"`
	EventID   string            `json:"event_id,omitempty"`
	Breakdown ranking.Breakdown `json:"breakdown"`
	Score     float64           `json:"score"`
}

// Stats is a point-in-time view of the service.
type Stats struct {
	Started       bool               `json:"started"`
	Workers       int                `json:"workers"`
	QueueLength   int                `json:"queue_length"`
	QueueCapacity int                `json:"queue_capacity"`
	DedupeSize    int64              `json:"dedupe_size"`
	Applied       int64              `json:"changes_applied"`
	Store         *repository.Counts `json:"store,omitempty"`
}

// Service serves ranked feeds and keeps the cached ones fresh.
type Service struct {
	mu sync.RWMutex

	store   repository.Store
	cache   cache.Cache
	deduper dedupe.Deduper
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	cron    *cron.Cron

	workerCount     int
	queueSize       int
	dedupeSize      int
	cacheTTL        time.Duration
	invalidateRPS   float64
	refreshSchedule string

	started bool
	stopped bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a Service. Components are created here; goroutines are
// launched by Start.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:   runtime.NumCPU(),
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		cacheTTL:      defaultCacheTTL,
		invalidateRPS: defaultInvalidateRPS,
		logger:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	if s.cache == nil {
		s.cache = cache.NewMemoryCache(cache.WithTTL(s.cacheTTL), cache.WithLogger(s.logger.Named("cache")))
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.queue, s.cache,
		worker.WithWorkerCount(s.workerCount),
		worker.WithInvalidateRate(s.invalidateRPS, 1),
		worker.WithLogger(s.logger.Named("worker-pool")),
	)
	return s
}

// Start launches the worker pool and the refresh schedule.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	if s.refreshSchedule != "" {
		c, err := newScheduler(s.refreshSchedule, s.logger.Named("cron"), s.scheduledRefresh)
		if err != nil {
			return fmt.Errorf("refresh schedule %q: %w", s.refreshSchedule, err)
		}
		s.cron = c
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(runCtx)
	if s.cron != nil {
		s.cron.Start()
	}

	s.started = true
	s.logger.Info(ctx, "feed service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.String("refresh_schedule", s.refreshSchedule),
	)
	return nil
}

// Stop drains pending changes and stops background work. The service cannot
// be restarted.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping feed service")
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	_ = s.queue.Close()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	s.cancel()

	s.started = false
	s.stopped = true
	s.logger.Info(ctx, "feed service stopped")
}

// rankAndStore ranks a fresh feed and caches it unless an invalidation ran
// while the snapshot was loaded or ranked. The version is read first so a
// change that lands mid-ranking always wins over the feed built without it.
func (s *Service) rankAndStore(ctx context.Context, viewerID string) ([]model.RankedPost, error) {
	version, verr := s.cache.Version(ctx, viewerID)
	if verr != nil {
		s.logger.Warn(ctx, "feed cache version read failed", logger.String("viewer", viewerID), logger.Error(verr))
	}

	feed, err := s.rank(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	if verr != nil {
		return feed, nil
	}

	stored, err := s.cache.SetIfVersion(ctx, viewerID, version, feed)
	switch {
	case err != nil:
		s.logger.Warn(ctx, "feed cache write failed", logger.String("viewer", viewerID), logger.Error(err))
	case !stored:
		s.logger.Debug(ctx, "dropped feed ranked before an invalidation", logger.String("viewer", viewerID))
	}
	return feed, nil
}

// Feed returns the viewer's ranked feed, truncated to limit (0 means all).
func (s *Service) Feed(ctx context.Context, viewerID string, limit int) ([]model.RankedPost, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	feed, ok, err := s.cache.Get(ctx, viewerID)
	if err != nil {
		s.logger.Warn(ctx, "feed cache read failed", logger.String("viewer", viewerID), logger.Error(err))
	}
	if !ok {
		feed, err = s.rankAndStore(ctx, viewerID)
		if err != nil {
			return nil, err
		}
	}

	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	return feed, nil
}

func (s *Service) rank(ctx context.Context, viewerID string) ([]model.RankedPost, error) {
	viewer, err := s.store.Viewer(ctx, viewerID)
	if err != nil {
		return nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		metrics.RecordErrorByComponent("service", "snapshot")
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	start := time.Now()
	ranked := ranking.RankSnapshot(snap, viewer)
	metrics.RecordRank(float64(time.Since(start).Microseconds())/1000, len(ranked), len(snap.Posts)-len(ranked))

	s.logger.Debug(ctx, "ranked feed",
		logger.String("viewer", viewerID),
		logger.Int("posts", len(snap.Posts)),
		logger.Int("ranked", len(ranked)),
	)
	return ranked, nil
}

// Explain returns the score breakdown of postID for viewerID. A post whose
// club does not resolve is reported as not found since it never ranks.
func (s *Service) Explain(ctx context.Context, viewerID, postID string) (Explanation, error) {
	viewer, err := s.store.Viewer(ctx, viewerID)
	if err != nil {
		return Explanation{}, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return Explanation{}, fmt.Errorf("load snapshot: %w", err)
	}

	post, ok := findPost(snap.Posts, postID)
	if !ok {
		return Explanation{}, fmt.Errorf("post %q: %w", postID, repository.ErrNotFound)
	}
	club, ok := findClub(snap.Clubs, post.ClubID)
	if !ok {
		return Explanation{}, fmt.Errorf("club %q of post %q: %w", post.ClubID, postID, repository.ErrNotFound)
	}
	var event *model.Event
	if post.HasEvent() {
		event = findEvent(snap.Events, post.LinkedEventID)
	}

	b := ranking.Explain(post, club, event, viewer)
	out := Explanation{
		PostID:    post.ID,
		ClubID:    club.ID,
		Breakdown: b,
		Score:     b.Total(),
	}
	if event != nil {
		out.EventID = event.ID
	}
	return out, nil
}

// Notify records a change notification and queues it for the workers.
// Changes without an id get a random one; a repeated id is acknowledged as
// a duplicate and not queued again.
func (s *Service) Notify(ctx context.Context, c model.Change) (Receipt, error) {
	s.mu.RLock()
	started, stopped := s.started, s.stopped
	s.mu.RUnlock()
	switch {
	case stopped:
		return Receipt{}, ErrStopped
	case !started:
		return Receipt{}, ErrNotStarted
	}

	if !c.Valid() {
		return Receipt{}, fmt.Errorf("%w: table=%q op=%q row_id=%q", ErrInvalidChange, c.Table, c.Op, c.RowID)
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.TS.IsZero() {
		c.TS = time.Now().UTC()
	}
	metrics.RecordChangeReceived(string(c.Table))

	if s.deduper.SeenAndRecord(ctx, c.ID) {
		metrics.RecordChangeDuplicate()
		s.logger.Debug(ctx, "duplicate change", logger.String("change_id", c.ID))
		return Receipt{ID: c.ID, Duplicate: true}, nil
	}

	if err := s.queue.Enqueue(ctx, c); err != nil {
		s.deduper.Unrecord(ctx, c.ID)
		switch {
		case errors.Is(err, queue.ErrFull):
			return Receipt{}, fmt.Errorf("%w: %v", ErrBackpressure, err)
		case errors.Is(err, queue.ErrClosed):
			return Receipt{}, ErrStopped
		default:
			return Receipt{}, err
		}
	}
	return Receipt{ID: c.ID}, nil
}

// Refresh drops every cached feed.
func (s *Service) Refresh(ctx context.Context) error {
	if err := s.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

func (s *Service) scheduledRefresh() {
	ctx := context.Background()
	if err := s.Refresh(ctx); err != nil {
		metrics.RecordErrorByComponent("service", "refresh")
		s.logger.Error(ctx, "scheduled refresh failed", logger.Error(err))
		return
	}
	s.logger.Debug(ctx, "scheduled refresh done")
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) Stats {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := Stats{
		Started:       started,
		Workers:       s.pool.WorkerCount(),
		QueueLength:   s.queue.Len(ctx),
		QueueCapacity: s.queue.Capacity(),
		DedupeSize:    s.deduper.Size(),
		Applied:       s.pool.Applied(),
	}
	counts, err := s.store.Count(ctx)
	if err != nil {
		s.logger.Warn(ctx, "store count failed", logger.Error(err))
	} else {
		stats.Store = &counts
	}
	return stats
}

func findPost(posts []model.Post, id string) (model.Post, bool) {
	for _, p := range posts {
		if p.ID == id {
			return p, true
		}
	}
	return model.Post{}, false
}

func findClub(clubs []model.Club, id string) (model.Club, bool) {
	for _, c := range clubs {
		if c.ID == id {
			return c, true
		}
	}
	return model.Club{}, false
}

func findEvent(events []model.Event, id string) *model.Event {
	for i := range events {
		if events[i].ID == id {
			e := events[i]
			return &e
		}
	}
	return nil
}
