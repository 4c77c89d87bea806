package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/storage"
)

// InvoiceService exposes record queries and edits to the API layer and
// keeps the archive store consistent with the index on deletes.
type InvoiceService struct {
	invoices *repository.InvoiceRepository
	jobs     *repository.JobRepository
	store    storage.FileStore
	logger   *logger.Logger
}

// NewInvoiceService creates a new InvoiceService.
func NewInvoiceService(
	invoices *repository.InvoiceRepository,
	jobs *repository.JobRepository,
	store storage.FileStore,
	log *logger.Logger,
) *InvoiceService {
	return &InvoiceService{invoices: invoices, jobs: jobs, store: store, logger: log}
}

// ListSummary aggregates a result set for display.
type ListSummary struct {
	TotalCount     int    `json:"total_count"`
	TotalAmount    string `json:"total_amount"`
	TotalTaxAmount string `json:"total_tax_amount"`
}

// Search lists records matching term (empty term lists everything) with
// aggregate totals.
func (s *InvoiceService) Search(ctx context.Context, term string) ([]domain.InvoiceRecord, ListSummary, error) {
	recs, err := s.invoices.Search(ctx, term)
	if err != nil {
		return nil, ListSummary{}, err
	}

	var amount, taxAmount float64
	for _, r := range recs {
		amount += r.Amount
		taxAmount += r.TotalAmount
	}
	summary := ListSummary{
		TotalCount:     len(recs),
		TotalAmount:    formatCurrency(amount),
		TotalTaxAmount: formatCurrency(taxAmount),
	}
	return recs, summary, nil
}

// Get retrieves one record.
func (s *InvoiceService) Get(ctx context.Context, id uint) (*domain.InvoiceRecord, error) {
	return s.invoices.GetByID(ctx, id)
}

// GetByIDs retrieves several records.
func (s *InvoiceService) GetByIDs(ctx context.Context, ids []uint) ([]domain.InvoiceRecord, error) {
	return s.invoices.GetByIDs(ctx, ids)
}

// Open returns the archived file content of a record.
func (s *InvoiceService) Open(ctx context.Context, rec *domain.InvoiceRecord) (io.ReadCloser, error) {
	if rec.FilePath == "" {
		return nil, fmt.Errorf("record %d has no archived file", rec.ID)
	}
	return s.store.Get(ctx, rec.FilePath)
}

// Update persists edited fields of an existing record.
func (s *InvoiceService) Update(ctx context.Context, rec *domain.InvoiceRecord) error {
	return s.invoices.Update(ctx, rec)
}

// Delete removes a record and its archived file. A missing file is not
// an error.
func (s *InvoiceService) Delete(ctx context.Context, id uint) error {
	rec, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.invoices.Delete(ctx, id); err != nil {
		return err
	}
	if rec.FilePath != "" {
		if err := s.store.Delete(ctx, rec.FilePath); err != nil {
			s.logger.WithError(err).WithField("file", rec.FilePath).
				Warn("Record deleted but file removal failed")
		}
	}
	return nil
}

// ClearAll removes every record, every job and every archived file.
func (s *InvoiceService) ClearAll(ctx context.Context) error {
	paths, err := s.invoices.FilePaths(ctx)
	if err != nil {
		return err
	}
	if err := s.invoices.ClearAll(ctx); err != nil {
		return err
	}
	if err := s.jobs.ClearAll(ctx); err != nil {
		return err
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.store.Delete(ctx, p); err != nil {
			s.logger.WithError(err).WithField("file", p).Warn("Failed to remove archived file")
		}
	}
	return nil
}

// formatCurrency renders an amount as ¥1,234.56.
func formatCurrency(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.Index(s, ".")
	intPart, frac := s[:dot], s[dot:]

	neg := strings.HasPrefix(intPart, "-")
	intPart = strings.TrimPrefix(intPart, "-")

	var b strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	sign := ""
	if neg {
		sign = "-"
	}
	return "¥" + sign + b.String() + frac
}
