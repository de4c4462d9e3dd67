package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/correlation"
	apperrors "github.com/watanabe-tsubasa/ai-drawing-conpetition-app/internal/platform/errors"
)

func TestCorrelationMiddleware_PropagatesHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set(correlation.Header, "req-42")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	err := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return nil
	})(c)

	require.NoError(t, err)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(correlation.Header))
}

func TestCorrelationMiddleware_GeneratesWhenMissingOrOversized(t *testing.T) {
	for _, header := range []string{"", strings.Repeat("x", 65), "bad id"} {
		e := echo.New()
		req := httptest.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set(correlation.Header, header)
		}
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		var seen string
		err := correlationMiddleware(func(c echo.Context) error {
			seen, _ = correlation.ID(c.Request().Context())
			return nil
		})(c)

		require.NoError(t, err)
		assert.Len(t, seen, 8)
		assert.Equal(t, seen, rec.Header().Get(correlation.Header))
	}
}

func TestMiddlewareWithStructuredError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), rec)

	err := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return apperrors.ValidationError("invalid input").WithField("field", "ai_name")
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
	assert.Equal(t, "ai_name", resp.Context["field"])
}

func TestMiddlewareWithStandardError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), rec)

	err := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return errors.New("standard error")
	})(c)

	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewarePassesThroughHTTPError(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())

	err := ErrorHandlingMiddleware()(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "nope")
	})(c)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}
