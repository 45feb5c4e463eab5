package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/ju4n97/estimator/internal/backend"
	"github.com/ju4n97/estimator/internal/backend/linear"
	"github.com/ju4n97/estimator/internal/config"
	"github.com/ju4n97/estimator/internal/env"
	"github.com/ju4n97/estimator/internal/logger"
	"github.com/ju4n97/estimator/internal/metrics"
	"github.com/ju4n97/estimator/internal/model"
	"github.com/ju4n97/estimator/internal/server/health"
	"github.com/ju4n97/estimator/internal/server/socket"
	"github.com/ju4n97/estimator/internal/service"
	"github.com/ju4n97/estimator/internal/source"
	"github.com/ju4n97/estimator/internal/xfs"
)

func run(c *cli.Context) error {
	environment := env.FromEnv()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	configPath := c.String("config")
	reloads := make(chan *config.Config, 1)
	cfg, watcher, err := loadConfig(ctx, configPath, reloads)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to load config: %v", err), 1)
	}
	if c.IsSet("socket") {
		cfg.Server.SocketPath = xfs.ExpandTilde(c.String("socket"))
	}
	if c.IsSet("download-path") {
		cfg.Storage.DownloadDir = xfs.ExpandTilde(c.String("download-path"))
	}

	levelName := cfg.Logging.Level
	if c.IsSet("log-level") {
		levelName = c.String("log-level")
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	slog.SetDefault(
		logger.New(environment,
			logger.WithLevel(level),
			logger.WithLogToFile(cfg.Logging.ToFile),
			logger.WithLogFile(cfg.Logging.File),
			logger.WithMaxSizeMB(cfg.Logging.MaxSizeMB),
		),
	)

	m := metrics.New()

	backends := backend.NewRegistry()
	if err := backends.Register(linear.NewBackend()); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	slog.Debug("Registered backends", "backends", backends.Providers())

	locator := model.NewLocator(cfg.Storage.DownloadDir)
	remote := source.NewRemote(locator, modelServerOptions(cfg))
	archive := source.NewArchive(locator, archivedModels(cfg), retryPolicy(cfg))
	cache := model.NewCache(locator, model.NewLoader(locator, backends), remote, archive, model.WithMetrics(m))
	estimator := service.NewEstimator(cache, m)

	slog.Info("Config loaded",
		"config", configPath,
		"environment", environment,
		"socket", cfg.Server.SocketPath,
		"download_dir", locator.Root(),
		"model_server", remote.Enabled())

	var wg sync.WaitGroup

	if watcher != nil {
		wg.Go(func() {
			for {
				select {
				case <-ctx.Done():
					return
				case reloaded := <-reloads:
					remote.Update(modelServerOptions(reloaded))
					archive.Update(archivedModels(reloaded))
					slog.Info("Applied reloaded config",
						"reloads", watcher.ReloadCount(),
						"model_server", remote.Enabled(),
						"archived_models", len(reloaded.Archive.Models))
				}
			}
		})
	}

	opts := []socket.Option{socket.WithReadTimeout(cfg.Server.ReadTimeout)}

	if cfg.Server.HealthSocket != "" {
		hs := health.New(cfg.Server.HealthSocket)
		opts = append(opts, socket.WithStateHook(func(state socket.State) {
			hs.SetServing(state == socket.StateListening)
		}))
		wg.Go(func() {
			if err := hs.Serve(ctx); err != nil {
				slog.Error("Health server stopped", "error", err)
			}
		})
	}

	if cfg.Server.MetricsAddress != "" {
		wg.Go(func() {
			if err := m.Serve(ctx, cfg.Server.MetricsAddress); err != nil {
				slog.Error("Metrics server stopped", "error", err)
			}
		})
	}

	srv := socket.New(cfg.Server.SocketPath, estimator, opts...)
	serveErr := srv.ListenAndServe(ctx)

	// Stop the health and metrics servers along with the socket.
	stop()
	wg.Wait()

	if serveErr != nil {
		slog.Error("Failed to serve", "socket", cfg.Server.SocketPath, "error", serveErr)
		return cli.Exit(serveErr.Error(), 1)
	}

	slog.Info("Estimator exit", "cached_models", cache.Len())

	return nil
}

// loadConfig loads the config and, when the file exists, watches it. Valid
// reloads are delivered on reloads, replacing any not yet consumed.
func loadConfig(ctx context.Context, path string, reloads chan *config.Config) (*config.Config, *config.Watcher, error) {
	if !xfs.Exists(path) {
		cfg, err := config.Load(path)
		return cfg, nil, err
	}

	watcher, err := config.NewWatcher(ctx, path, func(reloaded *config.Config, err error) {
		if err != nil {
			return
		}
		select {
		case <-reloads:
		default:
		}
		select {
		case reloads <- reloaded:
		default:
		}
	})
	if err != nil {
		slog.Warn("Config reload disabled", "path", path, "error", err)
		cfg, err := config.Load(path)
		return cfg, nil, err
	}

	// Flags are applied to the returned config, so hand out a copy.
	snapshot := *watcher.Snapshot()
	return &snapshot, watcher, nil
}

func retryPolicy(cfg *config.Config) source.RetryPolicy {
	return source.RetryPolicy{
		MaxRetries: cfg.ModelServer.MaxRetries,
		Delay:      cfg.ModelServer.RetryDelay,
	}
}

func modelServerOptions(cfg *config.Config) source.ModelServerOptions {
	return source.ModelServerOptions{
		URL:     cfg.ModelServer.URL,
		Path:    cfg.ModelServer.Path,
		Enabled: cfg.ModelServer.Enabled,
		Timeout: cfg.ModelServer.Timeout,
		Retry:   retryPolicy(cfg),
	}
}

func archivedModels(cfg *config.Config) []source.ArchivedModel {
	models := make([]source.ArchivedModel, 0, len(cfg.Archive.Models))
	for _, am := range cfg.Archive.Models {
		models = append(models, source.ArchivedModel{
			Source:     am.Source,
			OutputType: am.OutputType,
			URL:        am.URL,
		})
	}
	return models
}
