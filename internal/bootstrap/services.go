package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/threatwire/threatwire/config"
	reaperadapter "github.com/threatwire/threatwire/internal/adapters/reaper"
	"github.com/threatwire/threatwire/internal/adapters/scanrunner"
	"github.com/threatwire/threatwire/internal/data"
	"github.com/threatwire/threatwire/internal/data/connmanager"
	"github.com/threatwire/threatwire/internal/observability/statsd"
	"github.com/threatwire/threatwire/internal/service"
)

// App holds the wired application: connections, services, and the enabled
// background runners.
type App struct {
	Config  *config.AppConfig
	Logger  *slog.Logger
	Manager *connmanager.Manager
	Redis   redis.UniversalClient
	Metrics *statsd.Client

	Queue      *service.QueueService
	ScanRunner *scanrunner.Runner
	Reaper     *reaperadapter.Runner
}

// buildMetrics configures the StatsD sink. A disabled config yields an inert
// client, so emission sites never need guards.
func buildMetrics(cfg config.ObservabilityConfig, logger *slog.Logger) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  "threatwire",
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// NewApp wires connections, repositories, services, and the enabled runners.
func NewApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics := buildMetrics(cfg.Observability, logger)

	manager, err := ConnectDB(ctx, DatabaseOptions{
		DBConfig: cfg.Postgres,
		Logger:   logger,
		Metrics:  metrics,
	})
	if err != nil {
		return nil, err
	}

	redisClient, err := ConnectRedis(DatabaseOptions{
		RedisConfig: cfg.Redis,
		Logger:      logger,
	})
	if err != nil {
		shutdownErr := manager.Shutdown(ctx)
		return nil, errors.Join(err, shutdownErr)
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Manager: manager,
		Redis:   redisClient,
		Metrics: metrics,
	}

	if buildErr := app.buildRunners(); buildErr != nil {
		closeErr := app.Close(ctx)
		return nil, errors.Join(buildErr, closeErr)
	}
	return app, nil
}

// buildRunners wires the enabled background services over the shared
// connection manager.
func (a *App) buildRunners() error {
	if a.Config.IsScanRunnerEnabled() {
		opts := scanrunner.RunnerOptions{
			Executor: a.Manager,
			Config:   a.Config.ScanRunner,
			Queue:    a.Config.Queue,
			Logger:   a.Logger,
			Metrics:  a.Metrics,
		}
		if a.Redis != nil {
			opts.Cache = data.NewRedisCacheRepo(a.Redis)
		}

		runner, err := scanrunner.NewRunner(opts)
		if err != nil {
			return fmt.Errorf("wire scan runner: %w", err)
		}
		a.ScanRunner = runner
		a.Queue = runner.Queue()
	}

	if a.Config.IsReaperEnabled() {
		runner, err := reaperadapter.NewRunner(reaperadapter.RunnerOptions{
			Executor: a.Manager,
			Config:   a.Config.Reaper,
			Logger:   a.Logger,
			Metrics:  a.Metrics,
		})
		if err != nil {
			return fmt.Errorf("wire reaper: %w", err)
		}
		a.Reaper = runner
	}

	return nil
}

// Run starts the enabled runners and blocks until a shutdown signal arrives
// or a runner fails. Signal-driven shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)

	if a.ScanRunner != nil {
		group.Go(func() error {
			if err := a.ScanRunner.Run(groupCtx); err != nil {
				return fmt.Errorf("scan runner failed: %w", err)
			}
			return nil
		})
	}
	if a.Reaper != nil {
		group.Go(func() error {
			if err := a.Reaper.Run(groupCtx); err != nil {
				return fmt.Errorf("reaper failed: %w", err)
			}
			return nil
		})
	}

	err := group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	a.Logger.Info("services stopped")
	return nil
}

// Close releases connections.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Manager != nil {
		if err := a.Manager.Shutdown(ctx); err != nil && !errors.Is(err, connmanager.ErrShutdown) {
			errs = append(errs, fmt.Errorf("shutdown database: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close statsd client: %w", err))
		}
	}
	return errors.Join(errs...)
}
