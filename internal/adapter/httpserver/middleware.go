package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/correlation"
	apperrors "github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/errors"
)

// correlationMiddleware propagates a caller-supplied correlation ID or
// generates one, and echoes it back on the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}
	if err.Cause != nil {
		attrs = append(attrs, "cause", err.Cause)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Rejected request", attrs...)
	case apperrors.TypeUnavailable:
		slog.WarnContext(ctx, "Capacity exhausted", attrs...)
	case apperrors.TypeExternal:
		slog.ErrorContext(ctx, "External service error", attrs...)
	default:
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
