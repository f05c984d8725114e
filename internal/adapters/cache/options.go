package cache

import (
	"time"

	"github.com/okian/campusfeed/pkg/logger"
)

// Default cache settings.
const (
	defaultTTL    = 30 * time.Second
	defaultPrefix = "campusfeed"
)

type settings struct {
	ttl    time.Duration
	prefix string
	now    func() time.Time
	logger logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		now:    time.Now,
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option applies a configuration option to a cache.
type Option func(*settings)

// WithTTL sets how long a feed stays cached. Zero keeps entries until invalidated.
func WithTTL(ttl time.Duration) Option {
	return func(s *settings) {
		if ttl >= 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix sets the key prefix used by RedisCache.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock overrides the time source of MemoryCache.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the cache logger.
func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}
