// ABOUTME: Gateway orchestrator composing store, security, events, executor and channels
// ABOUTME: Owns the HTTP server, background sweeps and graceful shutdown

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/2389/nexus-gateway/internal/auth"
	"github.com/2389/nexus-gateway/internal/channel"
	"github.com/2389/nexus-gateway/internal/channel/command"
	"github.com/2389/nexus-gateway/internal/channel/httpapi"
	"github.com/2389/nexus-gateway/internal/channel/tools"
	"github.com/2389/nexus-gateway/internal/config"
	"github.com/2389/nexus-gateway/internal/events"
	"github.com/2389/nexus-gateway/internal/metrics"
	"github.com/2389/nexus-gateway/internal/security"
	"github.com/2389/nexus-gateway/internal/session"
	"github.com/2389/nexus-gateway/internal/store"
	"github.com/2389/nexus-gateway/internal/workflow"
)

// Gateway wires every component together and serves all three channels
// from one HTTP listener. Channels never talk to each other; they share
// the session, security, event and execution services composed here.
type Gateway struct {
	config   *config.Config
	store    store.Store
	sessions *session.Manager
	security *security.Manager
	router   *events.Router
	registry *workflow.Registry
	executor *workflow.Executor
	detector *channel.Detector
	metrics  metrics.Metrics
	logger   *slog.Logger

	httpServer *http.Server
}

// Options carries the injected pieces New cannot derive from config.
type Options struct {
	// Runtime executes workflow bodies. Defaults to EchoRuntime.
	Runtime workflow.Runtime
	// Registry holds the deployable workflows. Defaults to a registry
	// with the echo workflow for smoke testing.
	Registry *workflow.Registry
	// Authorizer overrides the default allow-all policy.
	Authorizer security.Authorizer
	// Store overrides the SQLite store from config, used by tests.
	Store  store.Store
	Logger *slog.Logger
}

// New builds a gateway from configuration.
func New(cfg *config.Config, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var m metrics.Metrics = metrics.Noop{}
	if cfg.Metrics.Enabled {
		m = metrics.NewProm("nexus")
	}

	s := opts.Store
	if s == nil {
		var err error
		s, err = openStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	sessions := session.NewManager(s, cfg.Sessions.TTL, logger)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))

	limiter, err := buildLimiter(cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = security.AllowAll{}
	}

	sec := security.NewManager(security.Config{
		Sessions:   sessions,
		Verifier:   verifier,
		APITokens:  auth.NewAPITokenService(s),
		Authorizer: authorizer,
		Limiter:    limiter,
		Store:      s,
		Metrics:    m,
		Logger:     logger,
	})

	router := events.NewRouter(s, cfg.Events.SubscriberBuffer, m, logger)

	registry := opts.Registry
	if registry == nil {
		registry = workflow.NewRegistry()
		registry.Register(&workflow.Handle{
			ID:          "echo",
			Version:     1,
			Name:        "Echo",
			Description: "returns its inputs unchanged",
		})
	}
	runtime := opts.Runtime
	if runtime == nil {
		runtime = workflow.EchoRuntime{}
	}

	executor := workflow.NewExecutor(workflow.Config{
		Registry: registry,
		Runtime:  runtime,
		Security: sec,
		Router:   router,
		Store:    s,
		Metrics:  m,
		Logger:   logger,
		Executor: cfg.Executor,
	})

	api := httpapi.New(httpapi.Config{
		Executor:  executor,
		Registry:  registry,
		Router:    router,
		Sessions:  sessions,
		Verifier:  verifier,
		Logger:    logger,
		SyncWait:  cfg.Executor.SyncWaitBudget,
		TokenTTL:  cfg.Auth.TokenTTL,
		KeepAlive: cfg.Events.KeepAlive,
	})
	cmd := command.New(command.Config{
		Executor: executor,
		Registry: registry,
		Logger:   logger,
		SyncWait: cfg.Executor.SyncWaitBudget,
	})
	rpc := tools.New(tools.Config{
		Executor: executor,
		Registry: registry,
		Logger:   logger,
		SyncWait: cfg.Executor.SyncWaitBudget,
	})

	g := &Gateway{
		config:   cfg,
		store:    s,
		sessions: sessions,
		security: sec,
		router:   router,
		registry: registry,
		executor: executor,
		detector: channel.NewDetector(api, api, cmd, rpc),
		metrics:  m,
		logger:   logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", g.handleHealth)
	mux.HandleFunc("/readyz", g.handleReady)
	if cfg.Metrics.Enabled {
		if prom, ok := m.(*metrics.Prom); ok {
			mux.Handle(cfg.Metrics.Path, prom.Handler())
		}
	}
	mux.HandleFunc("/", g.handleInbound)

	g.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return g, nil
}

// openStore creates the SQLite store, honoring the NEXUS_DB_PATH
// override for containerized deployments.
func openStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("NEXUS_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

func buildLimiter(cfg config.RateLimitConfig) (security.RateLimiter, error) {
	if cfg.Requests <= 0 {
		return security.UnlimitedLimiter{}, nil
	}
	if cfg.RedisURL != "" {
		limiter, err := security.NewRedisLimiterFromURL(cfg.RedisURL, cfg.Requests, cfg.Window)
		if err != nil {
			return nil, fmt.Errorf("initializing redis limiter: %w", err)
		}
		return limiter, nil
	}
	return security.NewWindowLimiter(cfg.Requests, cfg.Window), nil
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	failed, err := g.executor.FailOrphans(ctx)
	if err != nil {
		return fmt.Errorf("recovering orphaned runs: %w", err)
	}
	if failed > 0 {
		g.logger.Info("startup recovery complete", "orphaned_runs", failed)
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go g.sessions.RunSweeper(sweepCtx, g.config.Sessions.SweepInterval)

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	return g.gracefulShutdown()
}

// gracefulShutdown uses a fresh context since the run context is
// already cancelled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down")

	var firstErr error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := g.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports 200 once the store answers queries.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := g.store.ListRunsByStatus(r.Context(), store.RunRunning); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprintf(w, "store unavailable: %v", err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
