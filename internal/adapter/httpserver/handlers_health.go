package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gigmarket/internal/platform/version"
	"golang.org/x/sync/errgroup"
)

const (
	startupProbeTimeout   = 2 * time.Second
	readinessProbeTimeout = 5 * time.Second
)

// HealthCheck is a named dependency probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.probe(startupProbeTimeout))
	s.echo.GET("/health/ready", s.probe(readinessProbeTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/version", s.handleVersion)
}

// probe runs every check in parallel under one deadline and reports each
// result by name.
func (s *Server) probe(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		report := s.runHealthChecks(ctx)
		if report.Status != "ready" {
			return writeJSON(c, http.StatusServiceUnavailable, report)
		}
		return writeJSON(c, http.StatusOK, report)
	}
}

func (s *Server) runHealthChecks(ctx context.Context) healthReport {
	results := make([]error, len(s.healthChecks))

	var g errgroup.Group
	for i, hc := range s.healthChecks {
		i, hc := i, hc
		g.Go(func() error {
			results[i] = hc.Check(ctx)
			return nil
		})
	}
	_ = g.Wait()

	report := healthReport{Status: "ready", Checks: make(map[string]string, len(results))}
	for i, err := range results {
		name := s.healthChecks[i].Name
		if err != nil {
			report.Status = "unhealthy"
			report.Checks[name] = err.Error()
			continue
		}
		report.Checks[name] = "ok"
	}
	return report
}

func (s *Server) handleLiveness(c echo.Context) error {
	body := map[string]any{
		"status":   "ok",
		"uptime":   time.Since(s.startTime).Seconds(),
		"realtime": s.realtime.Registry != nil,
	}
	if reg := s.realtime.Registry; reg != nil {
		body["connections"] = reg.Stats().Connections
	}
	return writeJSON(c, http.StatusOK, body)
}

func (s *Server) handleVersion(c echo.Context) error {
	return writeJSON(c, http.StatusOK, version.Get())
}
