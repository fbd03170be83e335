package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	redisadapter "github.com/pscheid92/gigmarket/internal/adapter/redis"
	"github.com/pscheid92/gigmarket/internal/app"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/domain"
	"github.com/pscheid92/gigmarket/internal/platform/config"
)

type appService interface {
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	IssueRealtimeToken(ctx context.Context, userID int64, entityID, role string) (*app.RealtimeToken, error)

	ListCart(ctx context.Context, actorID, ownerID int64) ([]domain.CartItem, error)
	AddCartItem(ctx context.Context, actorID, ownerID int64, item domain.NewCartItem) (*domain.CartItem, error)
	UpdateCartItem(ctx context.Context, actorID, ownerID, itemID int64, quantity int) (*domain.CartItem, error)
	RemoveCartItem(ctx context.Context, actorID, ownerID, itemID int64) error
	ClearCart(ctx context.Context, actorID, ownerID int64) (int64, error)

	ListMessages(ctx context.Context, userID, conversationID, beforeID int64, limit int) ([]domain.Message, error)
	PostMessage(ctx context.Context, userID, conversationID int64, body string) (*domain.Message, error)
	MarkRead(ctx context.Context, userID, conversationID, messageID int64) (*domain.ReadState, error)
}

type nodeDirectory interface {
	NodeID() string
	LiveNodes(ctx context.Context) ([]redisadapter.NodeInfo, error)
}

// Realtime holds the realtime collaborators of the HTTP layer.
type Realtime struct {
	// Registry hosts coordinators on this node. Nil when coordinators live on another host.
	Registry *coordinator.Registry
	// Backing receives internal broadcast requests addressed to this node.
	Backing coordinator.Backing
	// Nodes lists the cluster members. Nil without Redis.
	Nodes   nodeDirectory
	Limits  *ConnectionLimits
	Metrics *metrics.RealtimeMetrics
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app      appService
	realtime Realtime
	upgrader websocket.Upgrader

	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	registry     *prometheus.Registry
	httpMetrics  *metrics.HTTPMetrics
	startTime    time.Time
}

func NewServer(cfg *config.Config, app appService, rt Realtime, healthChecks []HealthCheck, reg *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		realtime:     rt,
		upgrader:     newUpgrader(cfg),
		sessionStore: setupSessionStore(cfg),
		healthChecks: healthChecks,
		registry:     reg,
		startTime:    time.Now(),
	}
	if reg != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(reg)
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName      = "gigmarket-session"
	sessionKeyUserID = "user_id"
)

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store
}
