package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/domain"
	"github.com/pscheid92/gigmarket/internal/platform/correlation"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareWithStructuredError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
		return apperrors.ValidationError("invalid input")
	})

	err := handler(c)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid input", resp.Error)
	assert.Equal(t, apperrors.TypeValidation, resp.Type)
}

func TestMiddlewareWithStandardError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
		return errors.New("standard error")
	})

	require.NoError(t, handler(c))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "internal server error", resp.Error)
	assert.Equal(t, apperrors.TypeInternal, resp.Type)
}

func TestMiddlewareWithNoError(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
		return c.String(http.StatusOK, "success")
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", rec.Body.String())
}

func TestMiddlewarePassesEchoHTTPErrorThrough(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "missing csrf token")
	})

	err := handler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
}

func TestMiddlewareWithContext(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(ctxKeyUserID, int64(42))

	handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
		return apperrors.NotFoundError("cart item not found").
			WithField("item_id", 17).
			WithField("cart_user_id", 42)
	})

	require.NoError(t, handler(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cart item not found", resp.Error)
	assert.Equal(t, apperrors.TypeNotFound, resp.Type)
	assert.EqualValues(t, 17, resp.Context["item_id"])
	assert.EqualValues(t, 42, resp.Context["cart_user_id"])
}

func TestMiddlewareAllErrorTypes(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   apperrors.ErrorType
	}{
		{"validation", apperrors.ValidationError("test"), http.StatusBadRequest, apperrors.TypeValidation},
		{"not found", apperrors.NotFoundError("test"), http.StatusNotFound, apperrors.TypeNotFound},
		{"unauthorized", apperrors.UnauthorizedError("test"), http.StatusUnauthorized, apperrors.TypeUnauthorized},
		{"forbidden", apperrors.ForbiddenError("test"), http.StatusForbidden, apperrors.TypeForbidden},
		{"conflict", apperrors.ConflictError("test"), http.StatusConflict, apperrors.TypeConflict},
		{"rate limited", apperrors.RateLimitedError("test"), http.StatusTooManyRequests, apperrors.TypeRateLimited},
		{"internal", apperrors.InternalError("test", nil), http.StatusInternalServerError, apperrors.TypeInternal},
		{"external", apperrors.ExternalError("test", nil), http.StatusBadGateway, apperrors.TypeExternal},
		{"unavailable", apperrors.UnavailableError("test", nil), http.StatusServiceUnavailable, apperrors.TypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := ErrorHandlingMiddleware(nil)(func(c echo.Context) error {
				return tt.err
			})

			require.NoError(t, handler(c))
			assert.Equal(t, tt.expectedStatus, rec.Code)

			var resp apperrors.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.expectedType, resp.Type)
		})
	}
}

func TestMiddlewareCountsErrorsByType(t *testing.T) {
	m := metrics.NewHTTPMetrics(prometheus.NewRegistry())
	e := echo.New()

	for _, err := range []error{
		apperrors.ForbiddenError("not permitted"),
		apperrors.ForbiddenError("not permitted"),
		errors.New("boom"),
	} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/test", nil), httptest.NewRecorder())
		handler := ErrorHandlingMiddleware(m)(func(echo.Context) error { return err })
		require.NoError(t, handler(c))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(string(apperrors.TypeForbidden))), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues(string(apperrors.TypeInternal))), 0)
}

func TestCorrelationMiddleware(t *testing.T) {
	e := echo.New()
	var seen string
	handler := correlationMiddleware(func(c echo.Context) error {
		seen, _ = correlation.ID(c.Request().Context())
		return c.NoContent(http.StatusNoContent)
	})

	t.Run("generates an ID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, handler(c))

		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(correlation.Header))
	})

	t.Run("adopts the incoming header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(correlation.Header, "req-12345678")
		rec := httptest.NewRecorder()
		require.NoError(t, handler(e.NewContext(req, rec)))

		assert.Equal(t, "req-12345678", seen)
		assert.Equal(t, "req-12345678", rec.Header().Get(correlation.Header))
	})
}

func TestRequireAuth(t *testing.T) {
	t.Run("no session returns 401", func(t *testing.T) {
		srv := newTestServer(t, &mockAppService{})
		req := httptest.NewRequest(http.MethodGet, "/api/carts/42", nil)
		rec := httptest.NewRecorder()

		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var resp apperrors.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, apperrors.TypeUnauthorized, resp.Type)
	})

	t.Run("unknown user invalidates the session", func(t *testing.T) {
		srv := newTestServer(t, &mockAppService{
			getUserFn: func(_ context.Context, _ int64) (*domain.User, error) {
				return nil, domain.ErrUserNotFound
			},
		})
		req := httptest.NewRequest(http.MethodGet, "/api/carts/42", nil)
		rec := httptest.NewRecorder()
		setSessionUserID(t, srv, req, rec, 42)

		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("known user passes", func(t *testing.T) {
		srv := newTestServer(t, &mockAppService{})
		req := httptest.NewRequest(http.MethodGet, "/api/carts/42", nil)
		rec := httptest.NewRecorder()
		setSessionUserID(t, srv, req, rec, 42)

		srv.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
