package httpserver

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	apperrors "github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/errors"
)

const rateLimiterExpiry = 5 * time.Minute

func newMemoryRateStore(ratePerSecond float64, burst int) middleware.RateLimiterStore {
	return middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
}

// newRateLimiter limits requests per client IP using store's buckets.
func newRateLimiter(store middleware.RateLimiterStore) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return apperrors.RateLimitedError("rate limit exceeded").WithField("ip", identifier)
		},
	})
}
