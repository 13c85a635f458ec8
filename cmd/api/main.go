package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/factrouter/internal/alert"
	"github.com/nikhilbhutani/factrouter/internal/analysis"
	"github.com/nikhilbhutani/factrouter/internal/api"
	"github.com/nikhilbhutani/factrouter/internal/api/handlers"
	"github.com/nikhilbhutani/factrouter/internal/cache"
	"github.com/nikhilbhutani/factrouter/internal/config"
	"github.com/nikhilbhutani/factrouter/internal/format"
	"github.com/nikhilbhutani/factrouter/internal/logging"
	"github.com/nikhilbhutani/factrouter/internal/provider"
	"github.com/nikhilbhutani/factrouter/internal/queue"
	"github.com/nikhilbhutani/factrouter/internal/quota"
	"github.com/nikhilbhutani/factrouter/internal/router"
)

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log)
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ops, opsCloser, err := logging.Operator(cfg.Log)
	if err != nil {
		slog.Error("failed to open operator log", "error", err)
		os.Exit(1)
	}
	defer opsCloser.Close()

	ctx := context.Background()

	// Redis connection (optional)
	var rdb *redis.Client
	if cfg.Redis.Enabled() {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Warn("redis unavailable at startup", "error", err)
		}
	}

	loc, _ := cfg.Location()
	clock := quota.NewClock(loc)

	ledger, err := quota.Open(ctx, quota.Options{
		Backend:     cfg.Quota.Backend,
		Path:        cfg.Quota.Path,
		DatabaseURL: cfg.Database.URL,
		Redis:       rdb,
		RedisKey:    cfg.Quota.RedisKey,
	})
	if err != nil {
		slog.Error("failed to open quota ledger", "backend", cfg.Quota.Backend, "error", err)
		os.Exit(1)
	}
	defer ledger.Close()

	if n, err := ledger.Prune(ctx, clock.Today().AddDays(-cfg.Quota.RetainDays)); err != nil {
		slog.Warn("quota ledger prune failed", "error", err)
	} else if n > 0 {
		slog.Info("pruned stale quota records", "removed", n)
	}

	registry := provider.DefaultRegistry()
	creds := router.Credentials(cfg.Credentials)
	adapters := buildAdapters(registry, creds, cfg)

	sink, closeSink := alertSink(cfg, ops)
	defer closeSink()

	retries := cfg.Router.MaxRetries
	if retries == 0 {
		// ROUTER_MAX_RETRIES=0 asks for no retries; the executor reads 0 as its default
		retries = router.NoRetries
	}
	exec := router.NewExecutor(router.ExecutorConfig{
		AttemptTimeout: cfg.Router.AttemptTimeout,
		MaxRetries:     retries,
		BackoffInitial: cfg.Router.BackoffInitial,
		BackoffMax:     cfg.Router.BackoffMax,
	}, ledger, adapters,
		router.WithClock(clock),
		router.WithAlerts(sink),
		router.WithOperatorLog(ops),
	)
	rt := router.New(registry, creds, exec)

	// a task nobody can serve is an operator problem, not a reason to refuse to start
	for _, task := range provider.TaskTypes() {
		if chain, err := rt.Plan(task); err != nil {
			slog.Warn("task unavailable", "task", task, "error", err)
		} else {
			slog.Info("task plan", "task", task, "chain", providerIDs(chain))
		}
	}

	var store cache.Store
	if rdb != nil {
		store = cache.NewRedis(rdb, cache.DefaultPrefix)
	} else {
		mem, err := cache.NewMemory(cfg.Results.CacheSize)
		if err != nil {
			slog.Error("failed to create result cache", "error", err)
			os.Exit(1)
		}
		store = mem
	}

	policy, _ := analysis.ParseDetailPolicy(cfg.Results.DetailPolicy)
	svc := analysis.NewService(rt, store, format.New(cfg.Results.ChunkLimit), analysis.Config{
		Policy:    policy,
		ResultTTL: cfg.Results.TTL,
	})

	checks := []handlers.Check{{Name: "quota_ledger", Ping: ledger.Ping}}
	if rdb != nil {
		checks = append(checks, handlers.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	handler := api.NewRouter(api.Deps{
		Analyzer: svc,
		Status:   rt,
		Checks:   checks,
		Config:   cfg.API,
	}).Setup()

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout(cfg.Router),
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "detail_policy", policy, "quota_backend", cfg.Quota.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// alertSink picks the operator alert channel. The queue sink still writes to
// the operator log when redis is unreachable.
func alertSink(cfg *config.Config, ops *slog.Logger) (alert.Sink, func()) {
	logSink := alert.LogSink{Logger: ops}
	if cfg.Alerts.Sink != "queue" {
		return logSink, func() {}
	}
	qc := queue.NewClient(cfg.Redis)
	return alert.QueueSink{Queue: qc, Fallback: logSink}, func() { qc.Close() }
}

// writeTimeout leaves room for a full fallback chain behind one request.
func writeTimeout(rc config.RouterConfig) time.Duration {
	d := rc.AttemptTimeout * time.Duration(rc.MaxRetries+1) * 2
	if d < 60*time.Second {
		d = 60 * time.Second
	}
	return d
}
