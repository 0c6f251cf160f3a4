package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pagewarden/dispatch/internal/api"
	"github.com/pagewarden/dispatch/internal/cache"
	"github.com/pagewarden/dispatch/internal/catalog"
	"github.com/pagewarden/dispatch/internal/config"
	"github.com/pagewarden/dispatch/internal/events"
	"github.com/pagewarden/dispatch/internal/fetcher"
	"github.com/pagewarden/dispatch/internal/ingest"
	"github.com/pagewarden/dispatch/internal/observability"
	"github.com/pagewarden/dispatch/internal/scheduler"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "dispatchd",
		Short: "dispatchd — job-dispatch core for a distributed page review crawler",
		Long: `dispatchd selects, locks, and hands out the next page review job to an
idle worker, fairly across domains and respecting each domain's review
concurrency limit. It also accepts newly discovered pages into the
catalog. Content review, violation scoring and reporting live elsewhere.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(recalibrateCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatch HTTP API",
		RunE:  runServe,
	}
}

func recalibrateCmd() *cobra.Command {
	var lambdaDelta float64
	cmd := &cobra.Command{
		Use:   "recalibrate",
		Short: "Add to the pending lambda score, redistributed by the first NextJob call whose top candidate scores below it",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, err := catalog.NewMongoStore(ctx, cfg.Catalog.URI, cfg.Catalog.Database, logger)
			if err != nil {
				return fmt.Errorf("connect catalog: %w", err)
			}
			defer store.Close(ctx)

			settings, err := store.LoadSettings(ctx)
			if err != nil {
				return fmt.Errorf("load settings: %w", err)
			}
			if err := store.SetLambdaScore(ctx, settings.LambdaScore+lambdaDelta); err != nil {
				return fmt.Errorf("set lambda score: %w", err)
			}
			logger.Info("lambda score updated", "delta", lambdaDelta, "total", settings.LambdaScore+lambdaDelta)
			return nil
		},
	}
	cmd.Flags().Float64Var(&lambdaDelta, "delta", 1.0, "amount to add to the pending lambda score")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the count of pages eligible for dispatch",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store, err := catalog.NewMongoStore(ctx, cfg.Catalog.URI, cfg.Catalog.Database, logger)
			if err != nil {
				return fmt.Errorf("connect catalog: %w", err)
			}
			defer store.Close(ctx)

			n, err := store.ActiveDomainPageCount(ctx)
			if err != nil {
				return fmt.Errorf("count pages: %w", err)
			}
			fmt.Printf("pages eligible for dispatch: %d\n", n)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dispatchd %s\n", config.Version)
		},
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLoggerFromConfig(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	store, err := catalog.NewMongoStore(ctx, cfg.Catalog.URI, cfg.Catalog.Database, logger)
	cancel()
	if err != nil {
		return fmt.Errorf("connect catalog: %w", err)
	}
	defer store.Close(context.Background())

	indexCtx, indexCancel := context.WithTimeout(context.Background(), 20*time.Second)
	if err := store.EnsureIndexes(indexCtx); err != nil {
		indexCancel()
		return fmt.Errorf("ensure indexes: %w", err)
	}
	indexCancel()

	c := cache.NewRedisCache(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, logger)
	defer c.Close()

	f, err := fetcher.New(fetcher.Config{
		ProxyHost:       cfg.Fetcher.HTTPProxyHost,
		ProxyPort:       cfg.Fetcher.HTTPProxyPort,
		RequestTimeout:  cfg.Fetcher.RequestTimeout,
		MaxBodySize:     cfg.Fetcher.MaxBodySize,
		MaxRedirects:    cfg.Fetcher.MaxRedirects,
		FollowRedirects: cfg.Fetcher.FollowRedirects,
		UserAgent:       cfg.Fetcher.UserAgent,
	}, logger)
	if err != nil {
		return fmt.Errorf("create fetcher: %w", err)
	}

	var publisher events.Publisher
	if cfg.Cache.PublishEvents {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Addr,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		defer redisClient.Close()
		publisher = events.NewRedisPublisher(redisClient, cfg.Cache.EventsChannel, logger)
	} else {
		publisher = events.NewLogPublisher(logger)
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.New(registry)
	}

	sched := scheduler.New(store, c, metrics, logger)
	ing := ingest.New(store, c, f, publisher, metrics, cfg.Ingest.DefaultConcurrentConnections, logger)

	server := api.New(cfg.API.Port, sched, ing, cfg.Scheduler.DefaultLockExpirationSeconds, cfg.Scheduler.DefaultAvgLinksPerPage, cfg.Metrics.Enabled, cfg.Metrics.Path, registry, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig)
		return nil
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// setupLoggerFromConfig honors logging.level/format/output once config is
// loaded; the earlier setupLogger is used for the pre-config commands
// where only --verbose is available.
func setupLoggerFromConfig(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	out := os.Stderr
	if cfg.Logging.Output == "stdout" {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}
