// Package worker applies change notifications to the feed cache.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/campusfeed/internal/domain/model"
	"github.com/okian/campusfeed/pkg/logger"
	"github.com/okian/campusfeed/pkg/metrics"
)

// Default pool settings.
const (
	defaultInvalidateRPS   = 5
	defaultInvalidateBurst = 1
)

// Queue defines how workers receive changes.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Change
}

// Invalidator drops cached feeds.
type Invalidator interface {
	Invalidate(ctx context.Context, viewerID string) error
	InvalidateAll(ctx context.Context) error
}

// Pool runs workers that turn changes into cache invalidations. A change to
// a viewer drops that viewer's feed; a change to posts, clubs or events drops
// every feed through a single rate-limited flusher.
type Pool struct {
	queue       Queue
	target      Invalidator
	workerCount int
	limiter     *rate.Limiter
	logger      logger.Logger

	global   chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	flush    sync.WaitGroup

	started atomic.Bool
	applied atomic.Int64
	flushes atomic.Int64
}

// NewPool creates a pool reading from q and invalidating target.
func NewPool(q Queue, target Invalidator, opts ...Option) *Pool {
	p := &Pool{
		queue:       q,
		target:      target,
		workerCount: runtime.NumCPU(),
		limiter:     rate.NewLimiter(rate.Limit(defaultInvalidateRPS), defaultInvalidateBurst),
		logger:      logger.Nop(),
		global:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers and the flusher. It is a no-op when already started.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	changes := p.queue.Dequeue(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx, changes, p.logger.Named("worker-"+strconv.Itoa(i)))
	}
	p.flush.Add(1)
	go p.flusher(ctx)
	metrics.UpdateWorkerCount(p.workerCount)
}

// WorkerCount returns the configured number of workers.
func (p *Pool) WorkerCount() int {
	return p.workerCount
}

// Applied returns how many changes the workers have handled.
func (p *Pool) Applied() int64 {
	return p.applied.Load()
}

// Flushes returns how many global invalidations have run.
func (p *Pool) Flushes() int64 {
	return p.flushes.Load()
}

func (p *Pool) run(ctx context.Context, changes <-chan model.Change, log logger.Logger) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-changes:
			if !ok {
				return
			}
			if err := p.apply(ctx, c); err != nil {
				log.Error(ctx, "failed to apply change",
					logger.String("change_id", c.ID),
					logger.String("table", string(c.Table)),
					logger.Error(err),
				)
			}
		}
	}
}

func (p *Pool) apply(ctx context.Context, c model.Change) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerLatency(float64(time.Since(start).Milliseconds()))
	}()
	p.applied.Add(1)
	metrics.RecordChangeApplied()

	if c.Global() {
		select {
		case p.global <- struct{}{}:
		default:
			// a flush is already pending and will cover this change
		}
		return nil
	}
	if err := p.target.Invalidate(ctx, c.RowID); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "invalidate")
		return fmt.Errorf("invalidate viewer %s: %w", c.RowID, err)
	}
	return nil
}

// flusher serializes global invalidations and paces them with the limiter.
// A pending invalidation still runs once the pool is stopped.
func (p *Pool) flusher(ctx context.Context) {
	defer p.flush.Done()
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-wctx.Done():
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			select {
			case <-p.global:
				p.invalidateAll(context.WithoutCancel(ctx))
			default:
			}
			return
		case <-p.global:
			if err := p.limiter.Wait(wctx); err != nil {
				if ctx.Err() == nil {
					p.invalidateAll(context.WithoutCancel(ctx))
				}
				return
			}
			p.invalidateAll(ctx)
		}
	}
}

func (p *Pool) invalidateAll(ctx context.Context) {
	p.flushes.Add(1)
	if err := p.target.InvalidateAll(ctx); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "invalidate_all")
		p.logger.Error(ctx, "failed to invalidate all feeds", logger.Error(err))
	}
}

// Shutdown waits for the workers to drain the queue, which must already be
// closed, then runs any pending global invalidation and stops the flusher.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.started.Load() {
		return nil
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		p.stopOnce.Do(func() { close(p.stop) })
		p.flush.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
