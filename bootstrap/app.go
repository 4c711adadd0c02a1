package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docstore/config"
	"docstore/core"
	"docstore/storage"

	"go.uber.org/zap"
)

// App represents the docstore process with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	Storage *StorageComponents

	shutdownCh chan struct{}
}

// NewApp initializes logging, configuration and the persistence layer.
// The entire initialization path runs under the startup ceiling; if it
// expires, the process is terminated with a diagnostic rather than left
// serving from a half-initialized state.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{shutdownCh: make(chan struct{})}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("docstore starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	err = storage.Guard(ctx, cfg.Selector.StartupCeiling, "process startup", sugar, func(ctx context.Context) error {
		comps, err := InitStorage(ctx, cfg, sugar)
		if err != nil {
			return err
		}
		app.Storage = comps
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrTimeout) {
			FatalStartupTimeout(cfg.Selector.StartupCeiling)
		}
		return nil, err
	}

	health := app.Storage.Selector.Health()
	sugar.Infow("Persistence layer ready",
		"active_backend", health.ActiveBackend,
		"state", health.ConnectionState,
		"skipped", health.DegradedReasons)

	return app, nil
}

// FatalStartupTimeout prints a diagnostic banner and terminates the
// process with a non-zero exit. Restarting is safer than serving from a
// half-initialized state.
func FatalStartupTimeout(ceiling time.Duration) {
	fmt.Fprintf(os.Stderr, "\n========================================\n")
	fmt.Fprintf(os.Stderr, "FATAL: Startup exceeded %s ceiling\n", ceiling)
	fmt.Fprintf(os.Stderr, "========================================\n")
	fmt.Fprintf(os.Stderr, "Initialization did not complete in time; the process will exit\n")
	fmt.Fprintf(os.Stderr, "rather than serve from a half-initialized state.\n")
	fmt.Fprintf(os.Stderr, "\nRemediation:\n")
	fmt.Fprintf(os.Stderr, "  - Check backend reachability (MongoDB URI, DynamoDB endpoint)\n")
	fmt.Fprintf(os.Stderr, "  - Remove credentials for unreachable backends to fall back faster\n")
	fmt.Fprintf(os.Stderr, "  - Raise selector.startup_ceiling if the environment is just slow\n")
	fmt.Fprintf(os.Stderr, "========================================\n\n")
	os.Exit(1)
}

// Store returns the CRUD surface upstream collaborators call.
func (a *App) Store() storage.Adapter {
	return a.Storage.Store
}

// Health returns the readiness snapshot.
func (a *App) Health() core.Health {
	return a.Storage.Selector.Health()
}

// WaitForShutdown blocks until SIGINT/SIGTERM, periodically logging the
// health snapshot so operators can watch backend state.
func (a *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			a.Sugar.Infow("Shutdown signal received", "signal", sig)
			return
		case <-ticker.C:
			health := a.Health()
			a.Sugar.Debugw("Health",
				"active_backend", health.ActiveBackend,
				"state", health.ConnectionState,
				"ready", health.Ready())
		case <-a.shutdownCh:
			return
		}
	}
}

// Shutdown closes backend connections and flushes logs.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Storage != nil {
		if err := a.Storage.Close(ctx); err != nil {
			a.Sugar.Warnw("Error closing storage", "error", err)
		}
	}

	_ = a.Logger.Sync()
	a.Sugar.Info("Shutdown complete")
}
