// Package httpserver exposes the vote API and the realtime room endpoints.
//
// Two echo instances are served: the public listener (vote API, /vote-room
// upgrades, health and metrics) and the internal listener (room broadcast
// ingestion and per-key room upgrades), which is meant to be bound to a
// loopback or private address only.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/domain"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/config"
	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/room"
)

type voteService interface {
	Cast(ctx context.Context, raw string) (domain.AIName, error)
	Tally(ctx context.Context) (domain.VoteCounts, error)
}

type roomRegistry interface {
	Get(key string) *room.Room
}

type Server struct {
	public   *echo.Echo
	internal *echo.Echo
	config   *config.Config

	votes        voteService
	rooms        roomRegistry
	limits       *ConnectionLimits
	upgrader     websocket.Upgrader
	healthChecks []HealthCheck
	voteLimits   middleware.RateLimiterStore

	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics
	connMetrics *metrics.ConnectionMetrics

	clock     clockwork.Clock
	startTime time.Time
}

// NewServer wires both listeners. voteLimits may be nil, in which case votes
// are rate limited per process.
func NewServer(cfg *config.Config, votes voteService, rooms roomRegistry, healthChecks []HealthCheck, voteLimits middleware.RateLimiterStore, reg *prometheus.Registry, clock clockwork.Clock) *Server {
	if voteLimits == nil {
		voteLimits = newMemoryRateStore(cfg.VoteRatePerSecond, cfg.VoteRateBurst)
	}
	srv := &Server{
		public:       newEcho(),
		internal:     newEcho(),
		config:       cfg,
		votes:        votes,
		rooms:        rooms,
		limits:       NewConnectionLimits(int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRatePerIP, cfg.ConnectionRateBurst, clock),
		healthChecks: healthChecks,
		voteLimits:   voteLimits,
		registry:     reg,
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		connMetrics:  metrics.NewConnectionMetrics(reg),
		clock:        clock,
		startTime:    clock.Now(),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
	}

	srv.registerPublicRoutes()
	srv.registerInternalRoutes()

	return srv
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	return e
}

// Start serves both listeners and returns when either stops. A listener that
// fails, for example on bind, shuts the other one down and its error is
// returned.
func (s *Server) Start() error {
	g, ctx := errgroup.WithContext(context.Background())
	g.Go(func() error {
		slog.Info("Starting public server", "port", s.config.Port)
		return s.public.Start(":" + s.config.Port)
	})
	g.Go(func() error {
		slog.Info("Starting internal server", "addr", s.config.InternalAddr)
		return s.internal.Start(s.config.InternalAddr)
	})
	g.Go(func() error {
		// Start only ever returns an error, so ctx is cancelled once either listener stops.
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Failed to stop remaining listener", "error", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := errors.Join(s.public.Shutdown(ctx), s.internal.Shutdown(ctx))
	if err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
