package repository

import (
	"time"

	"github.com/okian/campusfeed/pkg/logger"
	"github.com/sony/gobreaker"
)

// Option applies a configuration option to the PostgresStore.
type Option func(*PostgresStore)

// WithQueryTimeout bounds every query issued by the store.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(s *PostgresStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithBreakerSettings replaces the circuit breaker settings.
func WithBreakerSettings(settings gobreaker.Settings) Option {
	return func(s *PostgresStore) {
		s.breakerSettings = settings
	}
}

// WithLogger sets the store logger.
func WithLogger(l logger.Logger) Option {
	return func(s *PostgresStore) {
		if l != nil {
			s.logger = l
		}
	}
}
