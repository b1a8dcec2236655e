package app

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"sqlbridge/internal/api"
	"sqlbridge/internal/config"
	"sqlbridge/internal/platform/logger"
	"sqlbridge/internal/platform/sqlite"
	"sqlbridge/internal/store"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger

	registry *store.Registry
	txm      *store.TxManager
	exec     *store.Executor
	migrator *store.Migrator
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "sqlbridge",
	})

	opts := sqlite.DefaultOptions()
	if cfg.DB.BusyTimeout > 0 {
		opts.BusyTimeout = cfg.DB.BusyTimeout
	}

	registry := store.NewRegistry(opts, nil, log)
	txm := store.NewTxManager(registry, log)
	exec := store.NewExecutor(registry, txm, log)
	migrator := store.NewMigrator(registry, txm, exec, log)

	return &App{
		cfg:      cfg,
		log:      log,
		registry: registry,
		txm:      txm,
		exec:     exec,
		migrator: migrator,
	}, nil
}

// Migrator exposes the migration runner so callers embedding the app can
// register migration sets before Run.
func (a *App) Migrator() *store.Migrator { return a.migrator }

// Run starts the application and blocks until the process is signalled.
func (a *App) Run() error {
	a.log.Info("starting")
	defer func() { _ = logger.Close(a.log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.preload(ctx); err != nil {
		return err
	}

	janitor, err := NewJanitor(a.txm, a.cfg.DB.TxWarnAfter, a.log)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	if a.cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	api.NewHandler(a.registry, a.txm, a.exec, a.migrator, a.cfg.DB.DataDir, a.log).Register(r)

	srv := &http.Server{Addr: a.cfg.HTTP.Addr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)

	// Drain before closing handles: an open transaction pins its handle.
	if n := a.txm.RollbackAllActive(shutdownCtx); n > 0 {
		a.log.Info("rolled back transactions on shutdown", "count", n)
	}
	if remaining := a.registry.CloseAll(); remaining > 0 {
		a.log.Warn("handles left open on shutdown", "count", remaining)
	}
	return err
}

// preload opens every configured connection string and, when a migration set
// is registered for it, brings the schema to the latest version.
func (a *App) preload(ctx context.Context) error {
	for _, raw := range a.cfg.DB.Preload {
		src, err := store.Resolve(raw, a.cfg.DB.DataDir)
		if err != nil {
			return err
		}
		if _, err := a.registry.Open(ctx, src, nil); err != nil {
			return err
		}
		if latest := a.migrator.LatestVersion(src.Alias); latest > 0 {
			if err := a.migrator.MigrateTo(ctx, src.Alias, latest); err != nil {
				return err
			}
		}
	}
	return nil
}
