package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/gigmarket/internal/adapter/httpserver"
	"github.com/pscheid92/gigmarket/internal/adapter/metrics"
	"github.com/pscheid92/gigmarket/internal/adapter/postgres"
	redisadapter "github.com/pscheid92/gigmarket/internal/adapter/redis"
	"github.com/pscheid92/gigmarket/internal/app"
	"github.com/pscheid92/gigmarket/internal/broadcast"
	"github.com/pscheid92/gigmarket/internal/capability"
	"github.com/pscheid92/gigmarket/internal/coordinator"
	"github.com/pscheid92/gigmarket/internal/platform/config"
	"github.com/pscheid92/gigmarket/internal/platform/logging"
	"github.com/pscheid92/gigmarket/internal/platform/retry"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

// realtimeStack is everything that carries events from the app service to sockets.
type realtimeStack struct {
	http      httpserver.Realtime
	backing   coordinator.Backing
	redis     *goredis.Client
	relayDone <-chan struct{}
	nodesDone <-chan struct{}
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func startupPolicy(dependency string) retry.Policy {
	p := retry.Startup
	p.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Dependency not ready, retrying", "dependency", dependency, "attempt", attempt, "backoff", backoff, "error", err)
	}
	return p
}

func setupDB(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) *pgxpool.Pool {
	tracer := postgres.NewMetricsTracer(metrics.NewPostgresMetrics(reg))

	pool, err := retry.Do(ctx, startupPolicy("postgres"), retry.Transient, func(ctx context.Context) (*pgxpool.Pool, error) {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return postgres.Connect(connectCtx, cfg.DatabaseURL, postgres.PoolOptions{
			MaxConns: int32(cfg.DatabaseMaxConns),
			MinConns: int32(cfg.DatabaseMinConns),
			Tracer:   tracer,
		})
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := postgres.RunMigrationsWithLock(migrateCtx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config, m *metrics.RedisMetrics) *goredis.Client {
	client, err := retry.Do(ctx, startupPolicy("redis"), retry.Transient, func(ctx context.Context) (*goredis.Client, error) {
		return redisadapter.NewClient(ctx, cfg.RedisURL, redisadapter.NewMetricsHook(m), redisadapter.NewCircuitBreakerHook(m))
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupSigner returns nil when no signing secret is configured.
func setupSigner(cfg *config.Config, clock clockwork.Clock) *capability.Signer {
	if cfg.RealtimeSigningSecret == "" {
		slog.Warn("REALTIME_SIGNING_SECRET not set, realtime tokens are disabled")
		return nil
	}
	signer, err := capability.NewSigner(cfg.RealtimeSigningSecret, clock)
	if err != nil {
		slog.Error("Failed to create token signer", "error", err)
		os.Exit(1)
	}
	return signer
}

func registryOptions(cfg *config.Config, signer *capability.Signer, clock clockwork.Clock, m *metrics.RealtimeMetrics) coordinator.Options {
	opts := coordinator.Options{
		InternalSecret: cfg.InternalBroadcastSecret,
		KeepAlive: coordinator.KeepAlive{
			PingInterval:   cfg.WSPingInterval,
			MaxMissedPongs: cfg.WSMaxMissedPong,
			WriteTimeout:   cfg.WSWriteTimeout,
		},
		MaxConnections: cfg.MaxConnectionsPerEntity,
		IdleTTL:        cfg.RealtimeIdleTTL,
		Clock:          clock,
		Metrics:        m,
	}
	// Avoid a typed nil in the interface.
	if signer != nil {
		opts.Verifier = signer
	}
	return opts
}

func setupRealtime(ctx context.Context, cfg *config.Config, signer *capability.Signer, clock clockwork.Clock, reg prometheus.Registerer) realtimeStack {
	rm := metrics.NewRealtimeMetrics(reg)
	limits := httpserver.NewConnectionLimits(
		int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
		cfg.WSConnectRate, cfg.WSConnectBurst, clock,
	)

	if cfg.RealtimeBackend == config.BackendHTTP {
		slog.Info("Realtime coordinators hosted remotely", "url", cfg.RealtimeCoordinatorURL)
		return realtimeStack{
			http:    httpserver.Realtime{Limits: limits, Metrics: rm},
			backing: broadcast.NewHTTPBacking(cfg.RealtimeCoordinatorURL, nil, clock),
		}
	}

	registry := coordinator.NewRegistry(registryOptions(cfg, signer, clock, rm))
	go registry.RunSweeper(ctx)

	if cfg.RealtimeBackend == config.BackendLocal {
		return realtimeStack{
			http:    httpserver.Realtime{Registry: registry, Backing: registry, Limits: limits, Metrics: rm},
			backing: registry,
		}
	}

	redisMetrics := metrics.NewRedisMetrics(reg)
	rdb := setupRedis(ctx, cfg, redisMetrics)
	nodeID := uuid.NewString()

	relay := redisadapter.NewRelay(rdb, registry, cfg.InternalBroadcastSecret, nodeID, clock, redisMetrics)
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		if err := relay.Run(ctx); err != nil {
			slog.Error("Relay stopped", "error", err)
		}
	}()

	nodes := redisadapter.NewNodeRegistry(rdb, nodeID, registry.Stats, clock)
	nodesDone := make(chan struct{})
	go func() {
		defer close(nodesDone)
		nodes.Run(ctx)
	}()

	slog.Info("Realtime relay over Redis", "node_id", nodeID)
	return realtimeStack{
		http:      httpserver.Realtime{Registry: registry, Backing: relay, Nodes: nodes, Limits: limits, Metrics: rm},
		backing:   relay,
		redis:     rdb,
		relayDone: relayDone,
		nodesDone: nodesDone,
	}
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	checks := []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
	}
	if rdb != nil {
		checks = append(checks, httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return checks
}

// runGracefulShutdown stops intake first, then drains the broadcaster before
// coordinators close their sockets.
func runGracefulShutdown(srv *httpserver.Server, broadcaster *broadcast.Broadcaster, rt realtimeStack, stopBackground context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		broadcaster.Stop()
		if rt.http.Registry != nil {
			rt.http.Registry.Stop()
		}

		stopBackground()
		for _, ch := range []<-chan struct{}{rt.relayDone, rt.nodesDone} {
			if ch != nil {
				<-ch
			}
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "realtime_backend", cfg.RealtimeBackend)

	ctx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	reg := metrics.NewRegistry()

	pool := setupDB(ctx, cfg, reg)
	defer pool.Close()

	signer := setupSigner(cfg, clock)
	rt := setupRealtime(ctx, cfg, signer, clock, reg)
	if rt.redis != nil {
		defer func() { _ = rt.redis.Close() }()
	}

	broadcaster := broadcast.New(broadcast.Options{
		Backing: rt.backing,
		Secret:  cfg.InternalBroadcastSecret,
		Metrics: rt.http.Metrics,
	})

	// Pass nil explicitly to avoid a typed-nil issuer.
	var issuer app.TokenIssuer
	if signer != nil {
		issuer = signer
	}
	appSvc := app.NewService(
		postgres.NewUserRepo(pool),
		postgres.NewCartRepo(pool),
		postgres.NewConversationRepo(pool),
		issuer,
		broadcaster,
		cfg.RealtimeTokenTTL,
	)

	srv := httpserver.NewServer(cfg, appSvc, rt.http, healthChecks(pool, rt.redis), reg)

	done := runGracefulShutdown(srv, broadcaster, rt, stopBackground)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
