package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hanlin/piaoju/internal/api"
	"github.com/hanlin/piaoju/internal/config"
	"github.com/hanlin/piaoju/internal/extract"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/pdfreader"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/service"
	"github.com/hanlin/piaoju/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		LogFile:     cfg.Log.File,
		ServiceName: "piaoju-api",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	invoiceRepo := repository.NewInvoiceRepository(db)
	jobRepo := repository.NewJobRepository(db)

	store, err := storage.NewFileStore(&cfg.Storage, cfg.Ingest.ArchiveDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3, ok := store.(*storage.S3Store); ok {
		if err := s3.EnsureBucket(context.Background()); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	reader := pdfreader.NewClient(&pdfreader.ClientConfig{
		BaseURL: cfg.Reader.BaseURL,
		Timeout: cfg.Reader.Timeout,
	})
	extractor := extract.NewExtractor(reader)

	ingestService := service.NewIngestService(
		jobRepo,
		invoiceRepo,
		store,
		extractor,
		appLogger,
		&service.IngestOptions{
			Workers:        cfg.Ingest.Workers,
			QueueSize:      cfg.Ingest.QueueSize,
			MaxExtractions: cfg.Ingest.MaxExtractions,
			JobTimeout:     cfg.Ingest.JobTimeout,
		},
	)
	invoiceService := service.NewInvoiceService(invoiceRepo, jobRepo, store, appLogger)
	exportService := service.NewExportService(invoiceRepo)

	router, err := api.SetupRouter(api.Deps{
		DB:       db,
		Jobs:     jobRepo,
		Ingest:   ingestService,
		Invoices: invoiceService,
		Export:   exportService,
		Logger:   appLogger,
		Config:   cfg,
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Drain queued jobs before exit so accepted uploads are not lost.
	ingestService.Shutdown(shutdownCtx)

	appLogger.Info("Server exited")
}
