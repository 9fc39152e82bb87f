package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/xcobe/cnx-waterlevel-monitor/internal/api"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/collector"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/config"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/resolver"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/retention"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/server"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/store"
	"github.com/xcobe/cnx-waterlevel-monitor/internal/upstream"
)

func main() {
	configPath := flag.String("config", "waterlevel.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Optional .env for local development; absence is not an error.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded .env file")
	}

	// 1. Load Configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	upstreamTimeout, err := time.ParseDuration(cfg.Upstream.Timeout)
	if err != nil {
		slog.Error("Invalid upstream timeout", "value", cfg.Upstream.Timeout, "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage
	fileStore, err := store.NewFileStore(cfg.Store.DataDir)
	if err != nil {
		slog.Error("Failed to initialize cache storage", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Upstream Client
	client := upstream.NewClient(cfg.Upstream.BaseURL, upstreamTimeout)

	// 4. Initialize Resolver
	resolverOpts := []resolver.Option{
		resolver.WithLookbackDays(cfg.Resolver.LookbackDays),
	}
	if memoTTL, err := time.ParseDuration(cfg.Resolver.MemoTTL); err == nil {
		resolverOpts = append(resolverOpts, resolver.WithMemoTTL(memoTTL))
	}
	res := resolver.New(fileStore, client, resolverOpts...)

	// 5. Initialize Collector + Retention Scheduler
	col := collector.New(fileStore, client, cfg.Collector.Stations,
		collector.WithConcurrency(cfg.Collector.Concurrency))
	sweeper := retention.New(fileStore, retention.WithMaxAgeDays(cfg.Retention.MaxAgeDays))
	sched := collector.NewScheduler(col, sweeper, cfg.Collector.EffectiveInterval(), cfg.Retention.SweepAt)

	// 6. Initialize API + Server
	apiSvc := api.NewService(fileStore, res, cfg.Collector.DefaultStation)
	srv := server.New(cfg.Server.Addr(), fileStore, cfg.Server.Mode)
	apiSvc.Register(srv.Engine)

	// 7. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Collector.Enabled {
		if err := sched.Start(ctx); err != nil {
			slog.Error("Failed to start collection scheduler", "error", err)
			os.Exit(1)
		}
		defer sched.Stop()
	} else {
		slog.Info("Collection scheduler disabled by config")
	}

	// Periodic memo sweep keeps the resolver's short-lived cache bounded.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				res.SweepMemo()
			case <-ctx.Done():
				return
			}
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
