package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mytechsonamy/mytrader-feed/internal/config"
	"github.com/mytechsonamy/mytrader-feed/internal/fanout"
	"github.com/mytechsonamy/mytrader-feed/internal/health"
	"github.com/mytechsonamy/mytrader-feed/internal/poll"
	"github.com/mytechsonamy/mytrader-feed/internal/router"
	"github.com/mytechsonamy/mytrader-feed/internal/storage"
	"github.com/mytechsonamy/mytrader-feed/internal/stream"
	"github.com/mytechsonamy/mytrader-feed/internal/transport/redispub"
	"github.com/mytechsonamy/mytrader-feed/internal/version"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "configs/feedd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting feedd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"streaming_url", cfg.Streaming.URL,
		"polling_url", cfg.Polling.BaseURL,
		"symbols", len(cfg.Symbols),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	store, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	logger.Info("database connected")

	// Connect to the pub/sub transport
	pub := redispub.New(cfg.Redis, logger)
	if err := pub.Ping(ctx); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer pub.Close()

	logger.Info("redis connected", "host", cfg.Redis.Host, "port", cfg.Redis.Port)

	// Ingestion clients
	pollClient := poll.NewClient(cfg.Polling.BaseURL,
		poll.WithTimeout(cfg.Polling.Timeout),
		poll.WithLogger(logger),
	)
	poller := poll.New(cfg.Polling, pollClient, store, logger)
	streamClient := stream.NewClient(cfg.Streaming, logger)

	// Router between the two sources
	streamStatus := func() router.SourceStatus {
		h := streamClient.Health()
		return router.SourceStatus{
			Healthy:             h.Connected && h.Authenticated,
			ConsecutiveFailures: h.ConsecutiveFailures,
		}
	}
	pollStatus := func() router.SourceStatus {
		h := poller.Health()
		healthy := !h.LastSuccessAt.IsZero() &&
			time.Since(h.LastSuccessAt) < 2*cfg.Polling.Interval
		return router.SourceStatus{Healthy: healthy}
	}
	rt := router.New(cfg.Router, streamClient.Events(), poller.Events(), streamStatus, pollStatus, logger)

	// Fanout to subscriber groups
	fan := fanout.New(cfg.Fanout, rt.Out(), pub, logger)

	// Health surface
	monitor := health.NewMonitor(cfg.Instance.ID, version.Version,
		rt.Stats, streamClient.Health, poller.Health, fan.Stats, rt.Out().Stats,
		logger)
	handler := health.NewHandler(health.HandlerDeps{
		Monitor:      monitor,
		LastKnown:    rt.LastKnown,
		LastKnownAll: rt.LastKnownAll,
		Reload: func(context.Context) (int, error) {
			symbols, err := config.LoadSymbols(*configPath)
			if err != nil {
				return 0, err
			}
			streamClient.UpdateSubscription(symbols)
			poller.UpdateSymbols(symbols)
			return len(symbols), nil
		},
	}, logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: handler,
	}

	// Start the pipeline: sources first, then the consumers draining them.
	if err := poller.Start(ctx, cfg.Symbols); err != nil {
		logger.Error("failed to start poller", "error", err)
		os.Exit(1)
	}
	if err := streamClient.Start(ctx, cfg.Symbols); err != nil {
		logger.Error("failed to start streaming client", "error", err)
		os.Exit(1)
	}
	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := fan.Start(ctx); err != nil {
		logger.Error("failed to start fanout", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		return healthServer.Shutdown(shutdownCtx)
	})

	logger.Info("feedd running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Health.Port),
	)

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		cancel()
	}

	logger.Info("shutting down...")

	// Stop producers first so the router and fanout can flush what is
	// already in flight before they go down.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := streamClient.Stop(shutdownCtx); err != nil {
		logger.Warn("streaming client shutdown", "error", err)
	}
	if err := poller.Stop(shutdownCtx); err != nil {
		logger.Warn("poller shutdown", "error", err)
	}
	if err := rt.Stop(shutdownCtx); err != nil {
		logger.Warn("router shutdown", "error", err)
	}
	if err := fan.Stop(shutdownCtx); err != nil {
		logger.Warn("fanout shutdown", "error", err)
	}

	logger.Info("feedd stopped")
}
