package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cesargomez89/etude/internal/bootstrap"
	"github.com/cesargomez89/etude/internal/config"
	"github.com/cesargomez89/etude/internal/constants"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	a, err := bootstrap.Open(ctx, cfg, "etude-worker")
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	appLogger := a.Logger
	if cfg.Queue.Backend != constants.QueueBackendRedis {
		appLogger.Warn("Standalone worker with the in-memory queue only sees tasks it enqueues itself")
	}

	w, err := a.Worker()
	if err != nil {
		appLogger.Error("Failed to build worker", "error", err)
		os.Exit(1)
	}
	w.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down worker")
	w.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		appLogger.Error("Failed to close backends", "error", err)
	}
}
