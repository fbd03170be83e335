package httpserver

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	redisadapter "github.com/pscheid92/gigmarket/internal/adapter/redis"
	"github.com/pscheid92/gigmarket/internal/broadcast"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/domain"
	apperrors "github.com/pscheid92/gigmarket/internal/platform/errors"
)

const maxBroadcastBody = 64 << 10

func (s *Server) registerRealtimeRoutes(limiter echo.MiddlewareFunc) {
	s.echo.GET("/api/realtime/token", s.handleRealtimeToken, limiter, s.requireAuth)
	s.echo.GET("/ws/:entityKey", s.handleWebSocket)

	internal := s.echo.Group("/internal", s.requireInternalSecret)
	internal.POST("/coordinators/:entityKey/broadcast", s.handleInternalBroadcast)
	internal.GET("/realtime/stats", s.handleRealtimeStats)
}

func (s *Server) handleRealtimeToken(c echo.Context) error {
	userID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	entityID, role := c.QueryParam("entityId"), c.QueryParam("role")
	if entityID == "" || role == "" {
		return apperrors.ValidationError("entityId and role are required")
	}

	token, err := s.app.IssueRealtimeToken(c.Request().Context(), userID, entityID, role)
	if err != nil {
		return mapAppError(err, "issue realtime token").
			WithField("entity_id", entityID).
			WithField("role", role)
	}

	c.Response().Header().Set("Cache-Control", "no-store")
	return writeJSON(c, http.StatusOK, token)
}

// handleWebSocket upgrades and hands the socket to the entity's coordinator.
// Token problems are reported as close frames after the upgrade.
func (s *Server) handleWebSocket(c echo.Context) error {
	if s.realtime.Registry == nil || !s.config.RealtimeEnabled() {
		return apperrors.UnavailableError("realtime is not available on this node", nil)
	}

	key, err := domain.ParseEntityKey(c.Param("entityKey"))
	if err != nil {
		return apperrors.NotFoundError("unknown entity").WithField("entity_key", c.Param("entityKey"))
	}

	ip := c.RealIP()
	if s.realtime.Limits != nil {
		if ok, reason := s.realtime.Limits.Acquire(ip); !ok {
			if s.realtime.Metrics != nil {
				s.realtime.Metrics.Rejections.WithLabelValues(string(reason)).Inc()
			}
			if reason == LimitReasonGlobal {
				return apperrors.UnavailableError("connection capacity reached", nil)
			}
			return apperrors.RateLimitedError("too many connections").WithField("reason", string(reason))
		}
	}
	release := func() {
		if s.realtime.Limits != nil {
			s.realtime.Limits.Release(ip)
		}
	}

	ws, err := s.upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		release()
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "entity_key", key.String(), "error", err)
		return nil
	}

	conn, err := s.realtime.Registry.Accept(key, c.QueryParam("token"), ws)
	if err != nil {
		release()
		return nil
	}

	go func() {
		<-conn.Done()
		release()
	}()
	return nil
}

func (s *Server) requireInternalSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.config.InternalBroadcastSecret == "" {
			return apperrors.UnavailableError("internal broadcast secret is not configured", nil)
		}
		if !coordinator.SecretMatches(c.Request().Header.Get(broadcast.InternalSecretHeader), s.config.InternalBroadcastSecret) {
			return apperrors.ForbiddenError("forbidden")
		}
		return next(c)
	}
}

// handleInternalBroadcast accepts broadcast requests from other services.
// Nodes without local coordinators refuse them rather than forwarding.
func (s *Server) handleInternalBroadcast(c echo.Context) error {
	if s.realtime.Registry == nil || s.realtime.Backing == nil {
		return apperrors.UnavailableError("coordinators are not hosted on this node", nil)
	}

	key, err := domain.ParseEntityKey(c.Param("entityKey"))
	if err != nil {
		return apperrors.NotFoundError("unknown entity").WithField("entity_key", c.Param("entityKey"))
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBroadcastBody))
	if err != nil {
		return apperrors.ValidationError("failed to read request body")
	}
	event, err := coordinator.DecodeBroadcastBody(body)
	if err != nil {
		return apperrors.ValidationError(err.Error())
	}

	err = s.realtime.Backing.Send(c.Request().Context(), key, coordinator.BroadcastRequest{
		Action: coordinator.ActionBroadcast,
		Secret: c.Request().Header.Get(broadcast.InternalSecretHeader),
		Event:  event,
	})
	switch {
	case err == nil:
		return writeJSON(c, http.StatusOK, map[string]string{"status": "accepted"})
	case errors.Is(err, coordinator.ErrForbidden):
		return apperrors.ForbiddenError("forbidden")
	case errors.Is(err, coordinator.ErrEventNotAllowed),
		errors.Is(err, coordinator.ErrMalformedRequest),
		errors.Is(err, coordinator.ErrUnsupportedAction):
		return apperrors.ValidationError(err.Error()).WithField("entity_key", key.String())
	default:
		return apperrors.UnavailableError("coordinator unreachable", err).WithField("entity_key", key.String())
	}
}

type realtimeStats struct {
	NodeID       string                  `json:"nodeId,omitempty"`
	Coordinators int                     `json:"coordinators"`
	Connections  int                     `json:"connections"`
	Nodes        []redisadapter.NodeInfo `json:"nodes,omitempty"`
}

func (s *Server) handleRealtimeStats(c echo.Context) error {
	var stats realtimeStats
	if s.realtime.Registry != nil {
		local := s.realtime.Registry.Stats()
		stats.Coordinators, stats.Connections = local.Coordinators, local.Connections
	}

	if s.realtime.Nodes != nil {
		nodes, err := s.realtime.Nodes.LiveNodes(c.Request().Context())
		if err != nil {
			return apperrors.ExternalError("failed to list nodes", err)
		}
		stats.NodeID = s.realtime.Nodes.NodeID()
		stats.Nodes = nodes
	}
	return writeJSON(c, http.StatusOK, stats)
}
