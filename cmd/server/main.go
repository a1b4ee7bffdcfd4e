package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/etude/internal/bootstrap"
	"github.com/cesargomez89/etude/internal/config"
	"github.com/cesargomez89/etude/internal/constants"
	"github.com/cesargomez89/etude/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	ctx := context.Background()
	a, err := bootstrap.Open(ctx, cfg, "etude-server")
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	appLogger := a.Logger

	// The in-memory queue only reaches a worker in this process.
	var w *worker.Worker
	if cfg.Worker.Embedded || cfg.Queue.Backend != constants.QueueBackendRedis {
		w, err = a.Worker()
		if err != nil {
			appLogger.Error("Failed to build worker", "error", err)
			os.Exit(1)
		}
		w.Start()
	}

	// Initialize Router
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	a.HTTPHandler().RegisterRoutes(r)

	// Start Server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if w != nil {
		w.Stop()
	}
	if err := a.Close(shutdownCtx); err != nil {
		appLogger.Error("Failed to close backends", "error", err)
	}

	appLogger.Info("Server exiting")
}
