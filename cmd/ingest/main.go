package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/hanlin/piaoju/internal/config"
	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/extract"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/pdfreader"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/service"
	"github.com/hanlin/piaoju/internal/storage"
)

// Command-line ingester: processes one archive through the same
// pipeline as the API server, without running HTTP.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "piaoju-ingest",
	})
	logger.SetDefaultLogger(appLogger)

	archivePath := flag.String("file", "", "Path to the zip archive to ingest")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *archivePath == "" {
		appLogger.Fatal("Missing required -file flag")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

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
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if s3, ok := store.(*storage.S3Store); ok {
		if err := s3.EnsureBucket(ctx); err != nil {
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
			Workers:        1,
			QueueSize:      1,
			MaxExtractions: cfg.Ingest.MaxExtractions,
			JobTimeout:     cfg.Ingest.JobTimeout,
		},
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	// The pipeline removes its input when done, so work on a copy.
	workCopy, err := stageCopy(*archivePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to stage archive")
	}

	jobID, err := ingestService.Submit(ctx, workCopy, filepath.Base(*archivePath))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to submit archive")
	}

	appLogger.WithField(logger.FieldJobID, jobID).Info("Archive submitted, waiting for completion")

	job, err := waitForJob(ctx, jobRepo, jobID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed waiting for job")
	}

	switch job.Status {
	case domain.JobStatusFinished:
		stats, _ := job.Stats()
		appLogger.WithFields(logger.Fields{
			"documents_found": stats.DocumentsFound,
			"processed":       stats.Processed,
			"inserted":        stats.Inserted,
			"skipped":         stats.Skipped,
			"duplicates":      stats.Duplicates,
		}).Info("Ingestion completed")
	case domain.JobStatusFailed:
		appLogger.WithField("error", job.Result).Fatal("Ingestion failed")
	}
}

// stageCopy copies the archive into a temp file owned by the pipeline.
func stageCopy(path string) (string, error) {
	src, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.CreateTemp("", "piaoju-upload-*.zip")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// waitForJob polls until the job reaches a terminal state.
func waitForJob(ctx context.Context, jobs *repository.JobRepository, jobID string) (*domain.IngestJob, error) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			job, err := jobs.GetByID(ctx, jobID)
			if err != nil {
				return nil, err
			}
			if job.Status.Terminal() {
				return job, nil
			}
		}
	}
}
