package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func getProbe(t *testing.T, srv *Server, path string) (int, healthReport) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return rec.Code, report
}

func TestProbes(t *testing.T) {
	tests := []struct {
		name       string
		checks     []HealthCheck
		wantStatus int
		wantReport healthReport
	}{
		{
			name:       "all healthy",
			checks:     []HealthCheck{{Name: "postgres", Check: healthOK}, {Name: "redis", Check: healthOK}},
			wantStatus: http.StatusOK,
			wantReport: healthReport{Status: "ready", Checks: map[string]string{"postgres": "ok", "redis": "ok"}},
		},
		{
			name:       "no checks configured",
			wantStatus: http.StatusOK,
			wantReport: healthReport{Status: "ready", Checks: map[string]string{}},
		},
		{
			name:       "redis down",
			checks:     []HealthCheck{{Name: "postgres", Check: healthOK}, {Name: "redis", Check: healthErr("connection refused")}},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: healthReport{Status: "unhealthy", Checks: map[string]string{"postgres": "ok", "redis": "connection refused"}},
		},
		{
			name:       "every failure is reported",
			checks:     []HealthCheck{{Name: "postgres", Check: healthErr("database unreachable")}, {Name: "redis", Check: healthErr("timeout")}},
			wantStatus: http.StatusServiceUnavailable,
			wantReport: healthReport{Status: "unhealthy", Checks: map[string]string{"postgres": "database unreachable", "redis": "timeout"}},
		},
	}

	for _, tt := range tests {
		for _, path := range []string{"/health/startup", "/health/ready"} {
			t.Run(tt.name+" "+path, func(t *testing.T) {
				srv := newTestServer(t, &mockAppService{}, withHealthChecks(tt.checks...))

				status, report := getProbe(t, srv, path)

				assert.Equal(t, tt.wantStatus, status)
				assert.Equal(t, tt.wantReport, report)
			})
		}
	}
}

func TestProbe_ChecksShareDeadline(t *testing.T) {
	var sawDeadline bool
	srv := newTestServer(t, &mockAppService{}, withHealthChecks(HealthCheck{
		Name: "postgres",
		Check: func(ctx context.Context) error {
			_, sawDeadline = ctx.Deadline()
			return nil
		},
	}))

	status, _ := getProbe(t, srv, "/health/ready")

	assert.Equal(t, http.StatusOK, status)
	assert.True(t, sawDeadline)
}

func TestHandleLiveness(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"status":"ok"`)
	assert.Contains(t, body, `"uptime"`)
	assert.Contains(t, body, `"realtime":false`)
	assert.NotContains(t, body, `"connections"`)
}

func TestHandleLiveness_ReportsLocalConnections(t *testing.T) {
	reg := coordinator.NewRegistry(coordinator.Options{Clock: clockwork.NewFakeClock()})
	t.Cleanup(reg.Stop)
	srv := newTestServer(t, &mockAppService{}, withRealtime(Realtime{Registry: reg, Backing: reg}))
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"realtime":true`)
	assert.Contains(t, rec.Body.String(), `"connections":0`)
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(t, &mockAppService{})
	rec := httptest.NewRecorder()

	srv.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}
