package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/okian/campusfeed/internal/adapters/cache"
	"github.com/okian/campusfeed/internal/adapters/http/api"
	"github.com/okian/campusfeed/internal/adapters/http/openapi"
	"github.com/okian/campusfeed/internal/adapters/repository"
	service "github.com/okian/campusfeed/internal/app"
	"github.com/okian/campusfeed/internal/config"
	"github.com/okian/campusfeed/pkg/logger"
	"github.com/okian/campusfeed/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	connectTimeout            = 10 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func newServeCmd() *cobra.Command {
	var seedPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the feed HTTP server",
		Long: `Run the feed service and its HTTP API until SIGINT or SIGTERM.

The store is PostgreSQL when database_dsn is set and an in-memory store
otherwise, optionally seeded from a YAML file. The feed cache is Redis when
redis_addr is set and in-memory otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, seedPath)
		},
	}
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML snapshot used to seed the in-memory store")
	return cmd
}

func serve(ctx context.Context, seedPath string) error {
	if err := logger.Init(); err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, closeStore, err := openStore(ctx, cfg, seedPath, log.Named("store"))
	if err != nil {
		return err
	}
	defer closeStore()

	feedCache, closeCache, err := openCache(ctx, cfg, log.Named("cache"))
	if err != nil {
		return err
	}
	defer closeCache()

	svc := service.New(
		service.WithLogger(log.Named("service")),
		service.WithStore(store),
		service.WithCache(feedCache),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.ChangeQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithInvalidateRate(cfg.InvalidateRPS),
		service.WithRefreshSchedule(cfg.RefreshSchedule),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	router := mux.NewRouter()
	openapi.Register(router)
	apiServer := api.NewServer(svc,
		api.WithMaxFeedLimit(cfg.MaxFeedLimit),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
		api.WithLogger(log.Named("http")),
	)
	apiServer.Register(router)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore returns the PostgreSQL store when a DSN is configured and an
// in-memory store otherwise. The returned func releases it.
func openStore(ctx context.Context, cfg *config.Config, seedPath string, log logger.Logger) (repository.Store, func(), error) {
	if cfg.DatabaseDSN != "" {
		connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		pg, err := repository.OpenPostgres(connectCtx, cfg.DatabaseDSN,
			repository.WithQueryTimeout(cfg.QueryTimeout()),
			repository.WithLogger(log),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := pg.Migrate(connectCtx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Info(ctx, "using postgres store")
		return pg, func() {
			if err := pg.Close(); err != nil {
				log.Error(ctx, "close postgres", logger.Error(err))
			}
		}, nil
	}

	if seedPath == "" {
		log.Info(ctx, "using empty in-memory store")
		return repository.NewMemoryStore(), func() {}, nil
	}

	fx, err := readFixture(seedPath)
	if err != nil {
		return nil, nil, fmt.Errorf("read seed: %w", err)
	}
	viewers, err := fx.viewers()
	if err != nil {
		return nil, nil, fmt.Errorf("read seed: %w", err)
	}
	mem, err := repository.NewMemoryStoreFromSnapshot(fx.snapshot(), viewers...)
	if err != nil {
		return nil, nil, fmt.Errorf("seed store: %w", err)
	}
	log.Info(ctx, "using seeded in-memory store",
		logger.String("seed", seedPath),
		logger.Int("posts", len(fx.Posts)),
		logger.Int("viewers", len(fx.Viewers)),
	)
	return mem, func() {}, nil
}

// openCache returns a Redis cache when an address is configured and an
// in-memory cache otherwise. The returned func releases it.
func openCache(ctx context.Context, cfg *config.Config, log logger.Logger) (cache.Cache, func(), error) {
	opts := []cache.Option{
		cache.WithTTL(cfg.CacheTTL()),
		cache.WithPrefix(cfg.RedisPrefix),
		cache.WithLogger(log),
	}
	if cfg.RedisAddr == "" {
		log.Info(ctx, "using in-memory feed cache")
		return cache.NewMemoryCache(opts...), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	rc := cache.NewRedisCache(client, opts...)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rc.Ping(pingCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	log.Info(ctx, "using redis feed cache", logger.String("addr", cfg.RedisAddr))
	return rc, func() {
		if err := client.Close(); err != nil {
			log.Error(ctx, "close redis", logger.Error(err))
		}
	}, nil
}

// startSystemMetricsUpdater refreshes process metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes service gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateMemoryUsage(m.Alloc)
	metrics.UpdateGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordGCPause(avgPauseMs)
	}
}

func updateServiceMetrics(ctx context.Context, svc *service.Service) {
	stats := svc.GetStats(ctx)
	metrics.UpdateQueueSize(stats.QueueLength)
	metrics.UpdateQueueCapacity(stats.QueueCapacity)
	metrics.UpdateWorkerCount(stats.Workers)
}
