// Package main runs the storage core as a standalone daemon: it opens
// the configured store, serves Prometheus metrics, and reports cache
// statistics until shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wuchunfu/nessie/config"
	"github.com/wuchunfu/nessie/metric"
	"github.com/wuchunfu/nessie/natsclient"
	"github.com/wuchunfu/nessie/storage"
	"github.com/wuchunfu/nessie/storage/cached"
	"github.com/wuchunfu/nessie/storage/inmem"
	"github.com/wuchunfu/nessie/storage/natskv"
	"github.com/wuchunfu/nessie/storage/objcache"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		slog.Error("store failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  = flag.String("config", os.Getenv("NESSIE_CONFIG"), "path to configuration file (env: NESSIE_CONFIG)")
		logLevel    = flag.String("log-level", "info", "log level: debug, info, warn, error")
		logFormat   = flag.String("log-format", "json", "log format: json, text")
		validate    = flag.Bool("validate", false, "validate configuration and exit")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("nessie-store", version)
		return nil
	}

	logger := setupLogger(*logLevel, *logFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *validate {
		logger.Info("configuration is valid", "mode", cfg.Mode)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Stop()
		logger.Info("metrics server started", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
	}

	store, cleanup, err := openStore(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Mode == config.StorageModeKV {
		cfg.Cache.Enabled = false
	}

	facade, err := cached.WrapWithConfig(store, cfg.Cache,
		objcache.WithMetrics(registry, "facade"))
	if err != nil {
		return err
	}

	logger.Info("store ready",
		"mode", cfg.Mode,
		"store", facade.Name(),
		"repository", cfg.StoreConfig().RepositoryID,
		"size_limit", facade.HardObjectSizeLimit())

	reportStats(ctx, facade, logger)
	logger.Info("shutting down")
	return nil
}

func openStore(ctx context.Context, cfg config.Config,
	registry *metric.MetricsRegistry, logger *slog.Logger) (storage.Persist, func(), error) {

	if cfg.Mode == config.StorageModeMemory {
		store, err := inmem.New(cfg.StoreConfig())
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password),
		natsclient.WithToken(cfg.NATS.Token),
		natsclient.WithTimeout(cfg.NATS.ConnectTimeout),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry))
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}

	store, err := natskv.New(ctx, client, cfg.Store,
		natskv.WithLogger(logger), natskv.WithMetrics(registry))
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return store, cleanup, nil
}

// reportStats logs cache statistics periodically until the context is
// canceled.
func reportStats(ctx context.Context, store storage.Persist, logger *slog.Logger) {
	facade, ok := store.(*cached.CachingPersist)
	if !ok {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if stats := facade.Cache().Stats(); stats != nil {
				summary := stats.Summary()
				logger.Info("cache statistics",
					"size", summary.CurrentSize,
					"hits", summary.Hits,
					"misses", summary.Misses,
					"hit_ratio", fmt.Sprintf("%.2f", summary.HitRatio),
					"evictions", summary.Evictions)
			}
		}
	}
}
