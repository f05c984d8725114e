package worker

import (
	"golang.org/x/time/rate"

	"github.com/okian/campusfeed/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithWorkerCount sets how many goroutines consume the queue.
func WithWorkerCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workerCount = n
		}
	}
}

// WithInvalidateRate bounds how often every feed may be invalidated.
// Global changes arriving faster than rps are coalesced into one
// invalidation. rps <= 0 removes the bound.
func WithInvalidateRate(rps float64, burst int) Option {
	return func(p *Pool) {
		if rps <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the pool logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
