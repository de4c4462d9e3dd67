package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/adapter/metrics"
)

const (
	listenerPublic   = "public"
	listenerInternal = "internal"
)

func (s *Server) registerPublicRoutes() {
	e := s.public
	e.Use(correlationMiddleware)
	e.Use(s.setupRequestLoggerMiddleware(listenerPublic))
	e.Use(middleware.Recover())
	e.Use(s.httpMetrics.Middleware(listenerPublic))
	e.Use(ErrorHandlingMiddleware())
	e.Use(middleware.SecureWithConfig(middleware.SecureConfig{
		XSSProtection:         "",
		ContentTypeNosniff:    "nosniff",
		XFrameOptions:         "DENY",
		HSTSMaxAge:            63072000, // 2 years; only sent over HTTPS
		HSTSPreloadEnabled:    true,
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
	}))

	s.registerHealthRoutes()
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(s.registry)))

	e.Any("/vote-room", s.handleVoteRoom)

	api := e.Group("/api")
	api.POST("/vote", s.handleCastVote, newRateLimiter(s.voteLimits))
	api.GET("/votes", s.handleGetVotes)
}

func (s *Server) registerInternalRoutes() {
	e := s.internal
	e.Use(correlationMiddleware)
	e.Use(s.setupRequestLoggerMiddleware(listenerInternal))
	e.Use(middleware.Recover())
	e.Use(s.httpMetrics.Middleware(listenerInternal))
	e.Use(ErrorHandlingMiddleware())

	e.Any("/rooms/:key", s.handleRoomRequest)
	e.Any("/rooms/:key/broadcast", s.handleRoomRequest)
}

func (s *Server) setupRequestLoggerMiddleware(listener string) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"listener", listener,
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.InfoContext(c.Request().Context(), "Request", attrs...)
			return nil
		},
	})
}
