package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/searchrelay/searchrelay/server/internal/api"
	"github.com/searchrelay/searchrelay/server/internal/auth"
	"github.com/searchrelay/searchrelay/server/internal/cache"
	"github.com/searchrelay/searchrelay/server/internal/config"
	logpkg "github.com/searchrelay/searchrelay/server/internal/logger"
	"github.com/searchrelay/searchrelay/server/internal/metrics"
	"github.com/searchrelay/searchrelay/server/internal/search"
	"github.com/searchrelay/searchrelay/server/internal/session"
	"github.com/searchrelay/searchrelay/server/internal/stream"
	"github.com/searchrelay/searchrelay/server/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "searchrelay-server",
		Short:        "Stream search results to websocket clients",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	return cmd
}

func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, level, err := logpkg.NewLogger(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting searchrelay server",
		zap.String("config", configPath),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("search_driver", cfg.Search.Driver),
		zap.String("overlap", cfg.Stream.Overlap),
		zap.String("auth_mode", cfg.Auth.Mode),
	)

	metrics.Register(prometheus.DefaultRegisterer)

	searcher, closeSearcher, err := buildSearcher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSearcher()

	registry := session.NewRegistry()
	streamer := stream.New(searcher, cfg.Stream.MaxDelay)

	// Sessions hang off sessCtx so shutdown can cancel in-flight streams
	// before the HTTP server drains.
	sessCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	wsHandler := ws.New(sessCtx, registry, streamer, ws.Options{
		Overlap:    cfg.Stream.Overlap,
		QueueSize:  cfg.Stream.QueueSize,
		SendBuffer: cfg.Stream.SendBuffer,
	}, logger)

	router := api.NewRouter(api.Deps{
		Registry: registry,
		WS:       wsHandler,
		Gatherer: prometheus.DefaultGatherer,
		Auth:     auth.APIKey(cfg.Auth.Mode, cfg.Auth.EffectiveHeader(), cfg.Auth.Key()),
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if _, err := os.Stat(configPath); err == nil {
		eg.Go(func() error {
			return config.Watch(egCtx, configPath, logger, func(next *config.Config) {
				applyReload(logger, level, cfg, next)
			})
		})
	}

	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("Shutting down", zap.Int("sessions", registry.Count()))

		cancelSessions()
		registry.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}

// applyReload applies the hot-reloadable part of next. Only the log level can
// change at runtime; other differences are reported and need a restart.
func applyReload(logger *zap.Logger, level zap.AtomicLevel, current, next *config.Config) {
	if next.Logging.Level != "" && next.Logging.Level != level.String() {
		if err := logpkg.SetLevel(level, next.Logging.Level); err != nil {
			logger.Warn("Ignoring invalid log level", zap.Error(err))
		} else {
			logger.Info("Log level changed", zap.String("level", next.Logging.Level))
		}
	}

	nextCopy := *next
	nextCopy.Logging.Level = current.Logging.Level
	if !sameRestartKeys(current, &nextCopy) {
		logger.Warn("Config changed; restart required for settings other than logging.level")
	}
}

func sameRestartKeys(a, b *config.Config) bool {
	return a.Server == b.Server &&
		a.Auth == b.Auth &&
		a.Stream == b.Stream &&
		a.Search.Driver == b.Search.Driver &&
		a.Search.SWAPI == b.Search.SWAPI &&
		a.Search.Fixture == b.Search.Fixture &&
		a.Logging.Env == b.Logging.Env
}

// buildSearcher creates the configured collaborator. The returned func
// releases anything it opened.
func buildSearcher(ctx context.Context, cfg *config.Config, logger *zap.Logger) (search.Searcher, func(), error) {
	noop := func() {}

	switch cfg.Search.Driver {
	case "fixture":
		f, err := search.LoadFixture(cfg.Search.Fixture.Path)
		if err != nil {
			return nil, noop, fmt.Errorf("load fixture: %w", err)
		}
		logger.Info("Using fixture collaborator", zap.String("path", cfg.Search.Fixture.Path))
		return f, noop, nil

	case "swapi":
		swapiCfg := search.SWAPIConfig{
			BaseURL:    cfg.Search.SWAPI.BaseURL,
			Timeout:    cfg.Search.SWAPI.Timeout,
			ItemDelay:  cfg.Search.SWAPI.ItemDelay,
			MaxRetries: cfg.Search.SWAPI.MaxRetries,
			Logger:     logger,
		}
		closeFn := noop

		if cfg.Search.Cache.Enabled() {
			store, err := cache.NewStore(cache.Config{
				Addrs:    cfg.Search.Cache.Addrs,
				Password: cfg.Search.Cache.Password,
			})
			if err != nil {
				return nil, noop, fmt.Errorf("create cache: %w", err)
			}
			if err := store.WaitForReady(ctx, 10*time.Second); err != nil {
				store.Close()
				return nil, noop, fmt.Errorf("cache not ready: %w", err)
			}
			logger.Info("Upstream response cache enabled",
				zap.Strings("addrs", cfg.Search.Cache.Addrs),
				zap.Duration("ttl", cfg.Search.Cache.TTL),
			)
			swapiCfg.Cache = store
			swapiCfg.CacheTTL = cfg.Search.Cache.TTL
			closeFn = store.Close
		}

		logger.Info("Using SWAPI collaborator", zap.String("base_url", cfg.Search.SWAPI.BaseURL))
		return search.NewSWAPI(swapiCfg), closeFn, nil
	}
	return nil, noop, fmt.Errorf("unknown search driver %q", cfg.Search.Driver)
}
