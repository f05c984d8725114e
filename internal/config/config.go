// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ChangeQueueSize bounds the in-memory change notification queue.
	ChangeQueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of change workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets how many change ids are remembered for idempotency.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxFeedLimit caps GET /feed/{viewer}?limit.
	MaxFeedLimit int `koanf:"max_feed_limit"`

	// CacheTTLMS is how long a ranked feed stays cached.
	CacheTTLMS int `koanf:"cache_ttl_ms"`

	// RedisAddr enables the Redis feed cache when set; otherwise an in-memory cache is used.
	RedisAddr   string `koanf:"redis_addr"`
	RedisPrefix string `koanf:"redis_prefix"`

	// DatabaseDSN enables the PostgreSQL store when set; otherwise an in-memory store is used.
	DatabaseDSN    string `koanf:"database_dsn"`
	QueryTimeoutMS int    `koanf:"query_timeout_ms"`

	// RefreshSchedule is a cron expression for full cache refreshes. Empty disables it.
	RefreshSchedule string `koanf:"refresh_schedule"`

	// RateLimitRPS and RateLimitBurst bound HTTP requests per second.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// InvalidateRPS bounds how often workers flush every viewer's feed.
	InvalidateRPS float64 `koanf:"invalidate_rps"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		ChangeQueueSize: 10_000,
		WorkerCount:     runtime.NumCPU(),
		DedupeSize:      100_000,
		MaxFeedLimit:    100,
		CacheTTLMS:      30_000,
		RedisPrefix:     "campusfeed",
		QueryTimeoutMS:  5_000,
		RefreshSchedule: "@every 5m",
		RateLimitRPS:    200,
		RateLimitBurst:  400,
		InvalidateRPS:   5,
	}
}

// CacheTTL returns CacheTTLMS as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLMS) * time.Millisecond
}

// QueryTimeout returns QueryTimeoutMS as a duration.
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutMS) * time.Millisecond
}
