package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rawblock/bayesnet-engine/internal/api"
	"github.com/rawblock/bayesnet-engine/internal/config"
	"github.com/rawblock/bayesnet-engine/internal/crosscheck"
	"github.com/rawblock/bayesnet-engine/internal/db"
	"github.com/rawblock/bayesnet-engine/internal/inference"
	"github.com/rawblock/bayesnet-engine/internal/jobs"
	"github.com/rawblock/bayesnet-engine/internal/registry"
	"github.com/rawblock/bayesnet-engine/internal/telemetry"
	"github.com/rawblock/bayesnet-engine/internal/watch"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Runs the HTTP API. Configuration comes from the environment: PORT,
DATABASE_URL (Postgres) or SQLITE_PATH, API_AUTH_TOKEN, ALLOWED_ORIGINS,
TREE_CACHE_SIZE, WATCH_DIR, RATE_LIMIT_PER_MIN, RATE_LIMIT_BURST and
OTEL_ENDPOINT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger, err := newLogger(root.debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

// openStore picks Postgres, then SQLite, then no persistence. A store that
// fails to open is logged and skipped; the engine still serves from memory.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) db.Store {
	var store db.Store
	switch {
	case cfg.DatabaseURL != "":
		pg, err := db.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("failed to connect to PostgreSQL, continuing without persistence", zap.Error(err))
			return nil
		}
		store = pg
	case cfg.SQLitePath != "":
		lite, err := db.OpenSQLite(cfg.SQLitePath, logger)
		if err != nil {
			logger.Warn("failed to open SQLite store, continuing without persistence", zap.Error(err))
			return nil
		}
		store = lite
	default:
		logger.Info("no store configured, networks live in memory only")
		return nil
	}
	if err := store.InitSchema(); err != nil {
		logger.Warn("schema init failed, continuing without persistence", zap.Error(err))
		store.Close()
		return nil
	}
	return store
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Release() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.OTelEndpoint, logger)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	store := openStore(ctx, cfg, logger)
	if store != nil {
		defer store.Close()
	}

	engine, err := inference.NewEngine(logger, cfg.TreeCacheSize)
	if err != nil {
		return err
	}
	reg := registry.New(store, logger)
	reg.OnRemove(engine.Forget)
	if _, err := reg.Hydrate(ctx); err != nil {
		logger.Warn("hydrating networks failed", zap.Error(err))
	}

	var checkOrigin func(*http.Request) bool
	if !cfg.AllowsAnyOrigin() {
		checkOrigin = func(r *http.Request) bool {
			return slices.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
		}
	}
	hub := api.NewHub(logger, checkOrigin)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	manager := jobs.NewManager(engine, logger, api.BroadcastJobEvents(hub))
	manager.SetRetention(cfg.JobRetention)
	defer manager.Shutdown()

	limiter := api.NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst)
	defer limiter.Stop()

	if cfg.WatchDir != "" {
		w, err := watch.New(cfg.WatchDir, reg, logger)
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
	}

	router := api.SetupRouter(cfg, api.Deps{
		Registry:   reg,
		Engine:     engine,
		Jobs:       manager,
		Crosscheck: crosscheck.NewRunner(engine, store, logger),
		Store:      store,
		Hub:        hub,
		Limiter:    limiter,
		Logger:     logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening", zap.String("addr", srv.Addr), zap.Int("networks", reg.Len()))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
