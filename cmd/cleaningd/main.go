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

	"cleaning-schedule-backend/config"
	"cleaning-schedule-backend/internal/api"
	"cleaning-schedule-backend/internal/db"
	"cleaning-schedule-backend/internal/fetcher"
	"cleaning-schedule-backend/internal/importer"
	"cleaning-schedule-backend/internal/lifecycle"
	"cleaning-schedule-backend/internal/logger"
	"cleaning-schedule-backend/internal/metrics"
	"cleaning-schedule-backend/internal/store"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level)
	defer log.Sync()
	log.Info("configuration loaded", "path", configPath, "timezone", cfg.Schedule.Timezone)

	m := metrics.New(cfg.Metrics.Namespace)

	// Initialize database
	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to initialize database", "error", err)
	}
	log.Info("database initialized successfully")

	// Create a context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB, log)
	importSvc := importer.New(appStore, cfg, m, log)
	lifecycleSvc := lifecycle.New(appStore, m, log)

	responses := api.NewResponseCache(cfg.Server)

	// Pull the client's schedule in the background when configured
	fetcherSvc := fetcher.NewService(cfg, importSvc, m, log)
	fetcherSvc.OnImported(responses.Flush)
	go fetcherSvc.Run(ctx)

	handler := api.NewHandler(appStore, importSvc, lifecycleSvc, log, cfg.Schedule.Location, cfg.Import.MaxBytes)
	router := api.NewRouter(handler, cfg.Server, m, responses)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start the server in a goroutine
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server ListenAndServe failed", "error", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	log.Info("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", "error", err)
	}

	log.Info("server gracefully stopped")
}
