package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taquilla/cmd/consumers/jobs"
	"taquilla/internal/config"
	"taquilla/internal/consumers"
	"taquilla/internal/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithFields("service", "consumers")

	log.Info("Starting consumers service...")

	// Override NATS client ID for consumers
	cfg.NATS.ClientID = "taquilla-consumers"

	// Create and start consumers
	consumerService, err := consumers.NewConsumerService(cfg, consumers.LogMailer{Logger: log})
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	// Start consuming messages
	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	var sweep *jobs.FulfillmentSweepJob
	if cfg.Sweep.Enabled {
		sweep = jobs.NewFulfillmentSweepJob(consumerService.Fulfillment(), cfg.Sweep.Interval, cfg.Sweep.Lookback)
		sweep.Start(ctx)
	}

	log.Info("Consumers service started successfully")

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")
	stop()
	if sweep != nil {
		sweep.Stop()
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}
