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

	"github.com/crosstab-lab/crosstab/internal/catalog"
	"github.com/crosstab-lab/crosstab/internal/config"
	"github.com/crosstab-lab/crosstab/internal/engine"
	"github.com/crosstab-lab/crosstab/internal/pivot"
	"github.com/crosstab-lab/crosstab/internal/server"
)

func main() {
	configPath := flag.String("config", "crosstab.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	cacheTTL, err := time.ParseDuration(cfg.Pivot.CacheTTL)
	if err != nil {
		slog.Error("Invalid cache TTL", "value", cfg.Pivot.CacheTTL, "error", err)
		os.Exit(1)
	}
	sweepInterval, err := time.ParseDuration(cfg.Pivot.SweepInterval)
	if err != nil {
		slog.Error("Invalid sweep interval", "value", cfg.Pivot.SweepInterval, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Engine Adapter
	adapter, err := engine.Open(
		cfg.Engine.Driver,
		cfg.Engine.DSN,
		cfg.Engine.MaxOpenConns,
		cfg.Engine.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		os.Exit(1)
	}
	defer adapter.Close()

	// 3. Initialize Catalog
	catalogSvc := catalog.NewService(adapter)

	// 4. Initialize Result Cache + Sweeper
	cache := pivot.NewResultCache(cacheTTL, cfg.Pivot.CacheMaxEntries)
	sweeper := pivot.NewSweeper(cache, sweepInterval)

	slog.Info("Result cache initialized",
		"ttl", cacheTTL,
		"sweep_interval", sweepInterval,
		"max_entries", cfg.Pivot.CacheMaxEntries,
	)

	// 5. Initialize Pivot Service
	pivotSvc := pivot.NewService(catalogSvc, adapter, cache, pivot.Limits{
		MaxRowsPerQuery:    cfg.Pivot.MaxRowsPerQuery,
		MaxColumnsPerQuery: cfg.Pivot.MaxColumnsPerQuery,
		FieldValuesLimit:   cfg.Pivot.FieldValuesLimit,
	})

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), adapter, cfg.Server.Mode)
	pivotSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sweeper.Start(ctx); err != nil {
			slog.Error("Sweeper stopped with error", "error", err)
		}
	}()

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
