package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mla-quiz/medref/internal/config"
	"github.com/mla-quiz/medref/internal/handlers"
	"github.com/mla-quiz/medref/internal/logging"
	"github.com/mla-quiz/medref/internal/reference"
	"github.com/mla-quiz/medref/internal/services"
	"github.com/mla-quiz/medref/internal/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the offline gateway",
		Long:  `Start the gateway in front of the quiz server. Page traffic is cached and submissions are queued while the upstream is unreachable.`,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := openStore(ctx, cfg, logger)
	defer store.Close()

	upstream := services.NewUpstreamClient(cfg.Upstream.URL, time.Duration(cfg.Upstream.Timeout)*time.Second)
	hub := services.NewHub(64, logger)
	defer hub.Close()

	worker, err := services.NewWorker(ctx, store, upstream, hub, services.OptionsFromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	// runs before store.Close
	defer worker.Close()
	if err := worker.Install(ctx); err != nil {
		logger.Warn("install incomplete", zap.Error(err))
	}
	logger.Info("worker ready", zap.String("state", worker.State().String()))

	monitor := services.NewMonitor(upstream, worker,
		time.Duration(cfg.Connectivity.ProbeIntervalSeconds)*time.Second, logger)
	go monitor.Run(ctx)

	catalog, err := reference.Load()
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := handlers.SetupRouter(handlers.Deps{
		Worker:        worker,
		Hub:           hub,
		Catalog:       catalog,
		SyncTag:       cfg.Sync.Tag,
		ControlSecret: cfg.Control.Secret,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			zap.String("addr", cfg.Addr()),
			zap.String("upstream", cfg.Upstream.URL),
			zap.Bool("control_auth", cfg.Control.Secret != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}

// openStore picks the bucket backend. When it cannot be opened the gateway
// still runs, network-only, on a NopStore.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.Store {
	var (
		store storage.Store
		err   error
	)
	switch cfg.Storage.Driver {
	case "redis":
		store, err = storage.NewRedisStore(ctx, cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
	case "sqlite":
		store, err = openSQLite(cfg)
	case "none":
		logger.Warn("bucket storage disabled, running network-only")
		return storage.NopStore{}
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		logger.Warn("bucket storage unavailable, running network-only",
			zap.String("driver", cfg.Storage.Driver), zap.Error(err))
		return storage.NopStore{}
	}
	logger.Info("bucket storage ready", zap.String("driver", cfg.Storage.Driver))
	return store
}

func openSQLite(cfg *config.Config) (storage.Store, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	db, err := storage.New(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return storage.NewSQLiteStore(db), nil
}
