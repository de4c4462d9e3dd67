package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/httpserver"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/memory"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/postgres"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/redis"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/app"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/config"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/logging"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/retry"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/version"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/room"
)

const storeConnectTimeout = 30 * time.Second

func connectPolicy(clock clockwork.Clock, backend string) retry.Policy {
	return retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Clock:          clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Vote store connection failed, retrying", "backend", backend, "attempt", attempt, "backoff", backoff, "error", err)
		},
	}
}

// setupStore connects the configured vote store. With Redis, vote rate limits
// are shared through it as well; otherwise the returned limiter store is nil.
// The returned cleanup closes the store's connections.
func setupStore(cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) (domain.VoteStore, middleware.RateLimiterStore, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), storeConnectTimeout)
	defer cancel()

	switch cfg.VoteStore {
	case config.StorePostgres:
		tracer := postgres.NewMetricsTracer(metrics.NewPostgresMetrics(reg), clock)
		pool, err := retry.Do(ctx, connectPolicy(clock, cfg.VoteStore), retry.Always, func(ctx context.Context) (*pgxpool.Pool, error) {
			return postgres.Connect(ctx, cfg.DatabaseURL, tracer)
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
			slog.Error("Failed to run migrations", "error", err)
			pool.Close()
			os.Exit(1)
		}
		return postgres.NewVoteStore(pool), nil, pool.Close

	case config.StoreRedis:
		redisMetrics := metrics.NewRedisMetrics(reg)
		hooks := []goredis.Hook{
			redis.NewMetricsHook(redisMetrics, clock),
			redis.NewCircuitBreakerHook(redisMetrics, clock),
		}
		client, err := retry.Do(ctx, connectPolicy(clock, cfg.VoteStore), retry.Always, func(ctx context.Context) (*goredis.Client, error) {
			return redis.NewClient(ctx, cfg.RedisURL, hooks...)
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		limiter := redis.NewVoteRateLimiter(client, clock, cfg.VoteRatePerSecond, cfg.VoteRateBurst)
		return redis.NewVoteStore(client), limiter, func() { _ = client.Close() }

	default:
		slog.Warn("Using in-memory vote store; tallies are lost on restart")
		return memory.NewVoteStore(), nil, func() {}
	}
}

func runGracefulShutdown(cfg *config.Config, srv *httpserver.Server, dispatcher *app.Dispatcher, rooms *room.Registry) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// stop accepting votes and upgrades first, then let queued broadcasts
		// reach the rooms before the rooms close their sessions
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			slog.Error("Dispatcher shutdown error", "error", err)
		}
		rooms.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	slog.Info("Application starting",
		"env", cfg.AppEnv,
		"port", cfg.Port,
		"internal_addr", cfg.InternalAddr,
		"vote_store", cfg.VoteStore,
		"version", info.Version,
		"commit", info.Commit)

	reg := metrics.NewRegistry()

	store, voteLimits, closeStore := setupStore(cfg, reg, clock)
	defer closeStore()

	rooms := room.NewRegistry(clock, metrics.NewRoomMetrics(reg))
	voteMetrics := metrics.NewVoteMetrics(reg)
	dispatcher := app.NewDispatcher(cfg.MaxInflightBroadcasts, voteMetrics)
	votes := app.NewVoteService(store, rooms, dispatcher, voteMetrics, clock)

	healthChecks := []httpserver.HealthCheck{
		{Name: "vote_store", Check: votes.Ready},
	}
	srv := httpserver.NewServer(cfg, votes, rooms, healthChecks, voteLimits, reg, clock)

	done := runGracefulShutdown(cfg, srv, dispatcher, rooms)

	slog.Info("Server starting", "port", cfg.Port, "internal_addr", cfg.InternalAddr)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
	slog.Info("Shutdown complete")
}
