package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/bapu077/quantstream-dashboard/internal/config"
	"github.com/bapu077/quantstream-dashboard/internal/database"
	"github.com/bapu077/quantstream-dashboard/internal/engine"
	"github.com/bapu077/quantstream-dashboard/internal/logger"
	"github.com/bapu077/quantstream-dashboard/internal/market"
	"github.com/bapu077/quantstream-dashboard/internal/metrics"
	"github.com/bapu077/quantstream-dashboard/internal/notify"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize the trade journal database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Load the bundled historical price table
	history, err := market.LoadHistory()
	if err != nil {
		log.Fatal("Failed to load historical data", zap.Error(err))
	}
	log.Info("Historical data loaded", zap.Int("rows", len(history)))

	// Notifications go to the webhook when one is configured, otherwise
	// to the log.
	var notifier notify.Notifier
	if cfg.Notifier.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(&cfg.Notifier, log)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Wire the simulation core to the WebSocket stream and the API server
	sim := engine.New(&cfg, history, notifier, m, db, log)
	stream := engine.NewStream(m, log)
	sim.SetUpdateHandler(stream.Broadcast)
	sim.Start(ctx)

	api := engine.NewAPIServer(sim, stream, &cfg, registry, log)
	api.Start()

	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}
	sim.Close()
	cancel()

	log.Info("Dashboard engine has been shut down.")
}
