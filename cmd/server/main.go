package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "homestay-booking/internal/api/http"
	"homestay-booking/internal/app"
	"homestay-booking/internal/config"
	"homestay-booking/internal/logger"
	"homestay-booking/internal/security"
	"homestay-booking/internal/storage"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Homestay Booking API...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Backends", "database", cfg.Database.Driver, "ledger", cfg.Ledger.Backend,
		"push", cfg.Firebase.Enabled, "email", cfg.SendGrid.Enabled)

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize application", "error", err)
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer application.Close()

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.Issuer)

	// Initialize Storage Service
	storageCfg := storage.Config{
		Type:         cfg.Storage.Type,
		MockDir:      cfg.Storage.UploadDir,
		BaseURL:      cfg.Storage.BaseURL,
		AllowedTypes: cfg.Storage.AllowedTypes,
		MaxBytes:     cfg.Storage.MaxUploadBytes,
	}
	var proofs storage.ProofStorage
	if cfg.Storage.Type == "" || cfg.Storage.Type == "mock" {
		logger.Info("Using mock storage (local filesystem)", "upload_dir", cfg.Storage.UploadDir)
		mockStorage, err := storage.NewMockStorageService(storageCfg)
		if err != nil {
			logger.Error("Failed to initialize mock storage", "error", err)
			log.Fatalf("Failed to initialize mock storage: %v", err)
		}
		proofs = mockStorage
	} else {
		logger.Error("Unsupported storage type", "type", cfg.Storage.Type)
		log.Fatalf("Storage type '%s' not yet implemented", cfg.Storage.Type)
	}

	server := httpapi.NewServer(httpapi.Dependencies{
		Bookings:      application.Bookings,
		Payments:      application.Payments,
		Promos:        application.Promos,
		Catalog:       application.Catalog,
		Ledger:        application.Ledger,
		Tokens:        tokenManager,
		Proofs:        proofs,
		StorageConfig: storageCfg,
		URLExpiry:     time.Duration(cfg.Storage.URLExpiryMins) * time.Minute,
	})

	srv := &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	logger.Info("Server stopped. Goodbye!")
}
