package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hanlin/piaoju/internal/archive"
	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/extract"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/storage"
)

// ErrQueueFull reports that the submission queue is at capacity. The
// condition is retryable: callers should resubmit later rather than
// treat the archive as rejected.
var ErrQueueFull = errors.New("ingest queue is full, retry later")

// IngestService drives the archive → expand → extract → persist
// pipeline. Submissions are acknowledged immediately with a job ID and
// consumed by a fixed-size worker pool; the bounded queue provides
// backpressure instead of spawning unbounded goroutines.
type IngestService struct {
	jobs      *repository.JobRepository
	invoices  *repository.InvoiceRepository
	store     storage.FileStore
	expander  *archive.Expander
	extractor *extract.Extractor
	logger    *logger.Logger

	jobTimeout time.Duration

	ch   chan submission
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type submission struct {
	jobID       string
	archivePath string
}

// IngestOptions holds pool sizing and per-job limits.
type IngestOptions struct {
	Workers        int
	QueueSize      int
	MaxExtractions int
	JobTimeout     time.Duration
}

// NewIngestService creates the service and starts its worker pool.
func NewIngestService(
	jobs *repository.JobRepository,
	invoices *repository.InvoiceRepository,
	store storage.FileStore,
	extractor *extract.Extractor,
	log *logger.Logger,
	opts *IngestOptions,
) *IngestService {
	workers := opts.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 16
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	s := &IngestService{
		jobs:       jobs,
		invoices:   invoices,
		store:      store,
		expander:   &archive.Expander{MaxExtractions: opts.MaxExtractions},
		extractor:  extractor,
		logger:     log,
		jobTimeout: timeout,
		ch:         make(chan submission, queueSize),
	}
	s.start(workers)
	return s
}

func (s *IngestService) start(workers int) {
	s.once.Do(func() {
		for i := 0; i < workers; i++ {
			s.wg.Add(1)
			go func(workerID int) {
				defer s.wg.Done()
				s.logger.WithField("worker_id", workerID).Info("Ingest worker started")
				for sub := range s.ch {
					s.runJob(sub)
				}
				s.logger.WithField("worker_id", workerID).Info("Ingest worker stopped")
			}(i + 1)
		}
	})
}

// Submit registers a job for the uploaded archive and enqueues it.
// Returns the job ID immediately; callers poll the job store for
// progress. When the queue is full the job is recorded as failed and
// ErrQueueFull is returned.
func (s *IngestService) Submit(ctx context.Context, archivePath, filename string) (string, error) {
	job, err := s.jobs.Create(ctx, filename)
	if err != nil {
		return "", fmt.Errorf("failed to create job: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, "service shutting down")
		return "", errors.New("ingest service is shutting down")
	}

	select {
	case s.ch <- submission{jobID: job.ID, archivePath: archivePath}:
		s.logger.WithFields(logger.Fields{
			logger.FieldJobID: job.ID,
			"filename":        filename,
		}).Info("Queued archive for ingestion")
		return job.ID, nil
	default:
		_ = s.jobs.UpdateStatus(ctx, job.ID, domain.JobStatusFailed, "submission queue full")
		return "", ErrQueueFull
	}
}

// Shutdown drains the queue and waits for in-flight jobs, bounded by
// ctx.
func (s *IngestService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); s.wg.Wait() }()

	select {
	case <-ctx.Done():
		s.logger.Warn("Ingest shutdown interrupted by context")
	case <-done:
		s.logger.Info("Ingest queue drained, shutdown complete")
	}
}

// runJob executes the whole pipeline for one submission. Scratch
// storage and the original archive are always removed, success or
// failure.
func (s *IngestService) runJob(sub submission) {
	ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
	defer cancel()
	ctx = s.logger.WithField(logger.FieldJobID, sub.jobID).WithContext(ctx)

	defer func() {
		if err := os.Remove(sub.archivePath); err != nil && !os.IsNotExist(err) {
			logger.CtxWarn(ctx, "Failed to remove uploaded archive: %v", err)
		}
	}()

	if err := s.jobs.UpdateStatus(ctx, sub.jobID, domain.JobStatusProcessing, nil); err != nil {
		logger.CtxError(ctx, "Failed to mark job processing: %v", err)
		return
	}

	stats, err := s.process(ctx, sub.archivePath)
	if err != nil {
		logger.CtxError(ctx, "Job failed: %v", err)
		_ = s.jobs.UpdateStatus(ctx, sub.jobID, domain.JobStatusFailed, err.Error())
		return
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"processed":       stats.Processed,
		"inserted":        stats.Inserted,
		"skipped":         stats.Skipped,
		"duplicates":      stats.Duplicates,
		"documents_found": stats.DocumentsFound,
	}).Info("Job finished")
	_ = s.jobs.UpdateStatus(ctx, sub.jobID, domain.JobStatusFinished, stats)
}

// process expands the archive into a scratch directory and extracts and
// persists every document found there.
func (s *IngestService) process(ctx context.Context, archivePath string) (domain.IngestStats, error) {
	var stats domain.IngestStats

	scratch, err := os.MkdirTemp("", "piaoju-docs-*")
	if err != nil {
		return stats, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)

	found, err := s.expander.Expand(ctx, archivePath, scratch)
	if err != nil {
		return stats, fmt.Errorf("archive expansion failed: %w", err)
	}
	stats.DocumentsFound = found

	entries, err := os.ReadDir(scratch)
	if err != nil {
		return stats, fmt.Errorf("failed to list expanded documents: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".pdf") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("job deadline exceeded: %w", err)
		}
		s.processDocument(ctx, filepath.Join(scratch, entry.Name()), &stats)
	}

	return stats, nil
}

// processDocument extracts records from one document and offers each to
// persistence, classifying the outcome as inserted, duplicate or
// skipped. Per-record failures never abort the batch.
func (s *IngestService) processDocument(ctx context.Context, path string, stats *domain.IngestStats) {
	records := s.extractor.Extract(ctx, path)
	if len(records) == 0 {
		stats.Skipped++
		return
	}
	stats.Processed++

	for _, rec := range records {
		key, err := s.archiveKey(ctx, filepath.Base(path))
		if err != nil {
			logger.CtxError(ctx, "Failed to choose archive key for %s: %v", path, err)
			stats.Skipped++
			continue
		}

		row := rec.Record(key)
		err = s.invoices.Insert(ctx, row)
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			stats.Duplicates++
			continue
		case err != nil:
			logger.CtxWarn(ctx, "Failed to insert record %s/%s: %v", rec.InvoiceCode, rec.InvoiceNumber, err)
			stats.Skipped++
			continue
		}
		stats.Inserted++

		// Copy only after a successful insert so the index never points
		// at files that were never offered for storage. A copy failure
		// leaves the row marked incomplete for manual reconciliation.
		if err := s.archiveFile(ctx, rec.SourcePath, key); err != nil {
			logger.CtxError(ctx, "Record %d inserted but file copy failed: %v", row.ID, err)
			_ = s.invoices.MarkIncomplete(ctx, row.ID)
		}
	}
}

// archiveKey resolves a storage key for the document, appending a
// numeric suffix while the name is taken.
func (s *IngestService) archiveKey(ctx context.Context, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	key := name
	for counter := 1; ; counter++ {
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
		key = fmt.Sprintf("%s_%d%s", stem, counter, ext)
	}
}

func (s *IngestService) archiveFile(ctx context.Context, src, key string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return s.store.Put(ctx, key, in)
}
