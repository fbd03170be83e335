package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newMeasuredEcho(m *HTTPMetrics) *echo.Echo {
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/carts/:userId", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.POST("/api/carts/:userId/items", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "missing csrf token")
	})
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestHTTPMetrics_RecordsByRouteTemplate(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := newMeasuredEcho(m)

	for _, path := range []string{"/api/carts/1", "/api/carts/2"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.InDelta(t, 2, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/api/carts/:userId", "2xx")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.InFlight), 0)
}

func TestHTTPMetrics_UsesEchoErrorStatus(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := newMeasuredEcho(m)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/carts/1/items", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodPost, "/api/carts/:userId/items", "4xx")), 0)
}

func TestHTTPMetrics_SkipsProbes(t *testing.T) {
	m := NewHTTPMetrics(prometheus.NewRegistry())
	e := newMeasuredEcho(m)

	e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, 0, testutil.CollectAndCount(m.Requests))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusNoContent))
	assert.Equal(t, "3xx", statusClass(http.StatusFound))
	assert.Equal(t, "4xx", statusClass(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
}
