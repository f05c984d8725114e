package api

import (
	"golang.org/x/time/rate"

	"github.com/okian/campusfeed/pkg/logger"
)

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxFeedLimit caps the limit query parameter of feed requests. It is
// also the limit used when the parameter is absent.
func WithMaxFeedLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFeedLimit = n
		}
	}
}

// WithRateLimit throttles API requests with a token bucket. rps <= 0
// disables throttling.
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
