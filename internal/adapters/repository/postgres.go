package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/sony/gobreaker"

	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
	"github.com/okian/campusfeed/pkg/metrics"
)

// Default PostgreSQL store settings.
const (
	defaultQueryTimeout     = 5 * time.Second
	defaultBreakerFailures  = 5
	defaultBreakerOpenFor   = 30 * time.Second
	defaultBreakerHalfProbe = 1
)

// Schema creates the tables the store reads. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS clubs (
	id              TEXT PRIMARY KEY,
	followers_count INTEGER NOT NULL DEFAULT 0 CHECK (followers_count >= 0),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS events (
	id               TEXT PRIMARY KEY,
	category         TEXT NOT NULL,
	total_seats      INTEGER NOT NULL DEFAULT 0,
	registered_count INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS posts (
	id               TEXT PRIMARY KEY,
	club_id          TEXT NOT NULL,
	linked_event_id  TEXT,
	engagement_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS viewers (
	id TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS viewer_follows (
	viewer_id TEXT NOT NULL REFERENCES viewers(id) ON DELETE CASCADE,
	club_id   TEXT NOT NULL,
	PRIMARY KEY (viewer_id, club_id)
);

CREATE TABLE IF NOT EXISTS viewer_interests (
	viewer_id TEXT NOT NULL REFERENCES viewers(id) ON DELETE CASCADE,
	category  TEXT NOT NULL,
	score     DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (viewer_id, category)
);`

// Queries issued by PostgresStore.
const (
	queryPosts          = `SELECT id, club_id, linked_event_id, engagement_score FROM posts ORDER BY created_at, id`
	queryClubs          = `SELECT id, followers_count FROM clubs ORDER BY created_at, id`
	queryEvents         = `SELECT id, category, total_seats, registered_count FROM events ORDER BY created_at, id`
	queryViewerExists   = `SELECT EXISTS (SELECT 1 FROM viewers WHERE id = $1)`
	queryViewerFollows  = `SELECT club_id FROM viewer_follows WHERE viewer_id = $1`
	queryViewerInterest = `SELECT category, score FROM viewer_interests WHERE viewer_id = $1`
	queryCounts         = `SELECT
	(SELECT count(*) FROM posts)   AS posts,
	(SELECT count(*) FROM clubs)   AS clubs,
	(SELECT count(*) FROM events)  AS events,
	(SELECT count(*) FROM viewers) AS viewers`
)

// errCallerDone marks a query that failed because the caller's own context
// ended. Such failures say nothing about the database and do not count
// against the breaker.
var errCallerDone = errors.New("caller context done")

// postRow mirrors a posts row; linked_event_id is nullable.
type postRow struct {
	ID              string         `db:"id"`
	ClubID          string         `db:"club_id"`
	LinkedEventID   sql.NullString `db:"linked_event_id"`
	EngagementScore float64        `db:"engagement_score"`
}

type interestRow struct {
	Category string  `db:"category"`
	Score    float64 `db:"score"`
}

// PostgresStore implements Store on a PostgreSQL database. Every query runs
// under a timeout and behind a circuit breaker.
type PostgresStore struct {
	db              *sqlx.DB
	timeout         time.Duration
	breakerSettings gobreaker.Settings
	breaker         *gobreaker.CircuitBreaker
	logger          logger.Logger
}

// OpenPostgres connects to dsn and returns a PostgresStore.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: database DSN is required", ErrUnavailable)
	}
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := NewPostgresStore(db, opts...)
	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping database: %v", ErrUnavailable, err)
	}
	return s, nil
}

// NewPostgresStore wraps an existing connection.
func NewPostgresStore(db *sqlx.DB, opts ...Option) *PostgresStore {
	s := &PostgresStore{
		db:      db,
		timeout: defaultQueryTimeout,
		breakerSettings: gobreaker.Settings{
			Name:        "postgres",
			MaxRequests: defaultBreakerHalfProbe,
			Timeout:     defaultBreakerOpenFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= defaultBreakerFailures
			},
		},
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	settings := s.breakerSettings
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = breakerSuccess
	}
	log := s.logger
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn(context.Background(), "circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
	s.breaker = gobreaker.NewCircuitBreaker(settings)
	return s
}

// Close closes the underlying connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return s.run(ctx, "migrate", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, Schema)
		return err
	})
}

// breakerSuccess is the default breaker outcome policy. Only failures the
// database is responsible for trip the breaker; the per-query timeout is one
// of them, a caller that cancelled or ran out of time is not.
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, errCallerDone) || errors.Is(err, context.Canceled)
}

// run executes fn behind the breaker with a per-query timeout and records metrics.
func (s *PostgresStore) run(ctx context.Context, source string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", source, err)
	}
	start := time.Now()
	_, err := s.breaker.Execute(func() (interface{}, error) {
		qctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		err := fn(qctx)
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w: %v", errCallerDone, ctx.Err(), err)
		}
		return nil, err
	})
	metrics.RecordSourceQuery(source, float64(time.Since(start).Milliseconds()), err != nil)
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", source, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", source, err)
}

// ListPosts implements PostSource. Rows come back in creation order.
func (s *PostgresStore) ListPosts(ctx context.Context) ([]model.Post, error) {
	var rows []postRow
	err := s.run(ctx, "posts", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &rows, queryPosts)
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Post, len(rows))
	for i, r := range rows {
		out[i] = model.Post{
			ID:              r.ID,
			ClubID:          r.ClubID,
			LinkedEventID:   r.LinkedEventID.String,
			EngagementScore: r.EngagementScore,
		}
	}
	return out, nil
}

// ListClubs implements ClubSource.
func (s *PostgresStore) ListClubs(ctx context.Context) ([]model.Club, error) {
	out := []model.Club{}
	err := s.run(ctx, "clubs", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &out, queryClubs)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListEvents implements EventSource.
func (s *PostgresStore) ListEvents(ctx context.Context) ([]model.Event, error) {
	out := []model.Event{}
	err := s.run(ctx, "events", func(ctx context.Context) error {
		return s.db.SelectContext(ctx, &out, queryEvents)
	})
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Category = model.NormalizeCategory(string(out[i].Category))
	}
	return out, nil
}

// Viewer implements ViewerSource.
func (s *PostgresStore) Viewer(ctx context.Context, viewerID string) (model.ViewerState, error) {
	var (
		exists    bool
		follows   []string
		interests []interestRow
	)
	err := s.run(ctx, "viewers", func(ctx context.Context) error {
		if err := s.db.GetContext(ctx, &exists, queryViewerExists, viewerID); err != nil {
			return err
		}
		if !exists {
			return nil
		}
		if err := s.db.SelectContext(ctx, &follows, queryViewerFollows, viewerID); err != nil {
			return err
		}
		return s.db.SelectContext(ctx, &interests, queryViewerInterest, viewerID)
	})
	if err != nil {
		return model.ViewerState{}, err
	}
	if !exists {
		return model.ViewerState{}, fmt.Errorf("viewer %q: %w", viewerID, ErrNotFound)
	}

	raw := make(map[string]float64, len(interests))
	for _, r := range interests {
		raw[r.Category] = r.Score
	}
	scores, err := model.NormalizeInterests(raw)
	if err != nil {
		return model.ViewerState{}, fmt.Errorf("viewer %q: %w: %w", viewerID, ErrInvalidRow, err)
	}
	return model.NewViewerState(viewerID, follows, scores), nil
}

// Snapshot implements Store.
func (s *PostgresStore) Snapshot(ctx context.Context) (model.Snapshot, error) {
	return LoadSnapshot(ctx, s, s, s)
}

// Count implements Store.
func (s *PostgresStore) Count(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.run(ctx, "counts", func(ctx context.Context) error {
		return s.db.QueryRowxContext(ctx, queryCounts).Scan(&c.Posts, &c.Clubs, &c.Events, &c.Viewers)
	})
	return c, err
}
