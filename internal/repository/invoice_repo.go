package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/hanlin/piaoju/internal/domain"
	"gorm.io/gorm"
)

// ErrDuplicate reports a natural-key collision on
// (invoice_code, invoice_number). It is a soft condition: the caller
// counts it, nothing is persisted, processing continues.
var ErrDuplicate = errors.New("invoice already exists")

// InvoiceRepository handles invoice record persistence and dedup.
type InvoiceRepository struct {
	db *gorm.DB
}

// NewInvoiceRepository creates a new InvoiceRepository.
func NewInvoiceRepository(db *gorm.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Insert persists a record. Returns ErrDuplicate when a record with the
// same (invoice_code, invoice_number) pair already exists.
func (r *InvoiceRepository) Insert(ctx context.Context, rec *domain.InvoiceRecord) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicate
	}
	return err
}

// GetByID retrieves a record by its ID.
func (r *InvoiceRepository) GetByID(ctx context.Context, id uint) (*domain.InvoiceRecord, error) {
	var rec domain.InvoiceRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetByIDs retrieves records by a list of IDs.
func (r *InvoiceRepository) GetByIDs(ctx context.Context, ids []uint) ([]domain.InvoiceRecord, error) {
	if len(ids) == 0 {
		return []domain.InvoiceRecord{}, nil
	}
	var recs []domain.InvoiceRecord
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get invoices by IDs: %w", err)
	}
	return recs, nil
}

// Search lists records, optionally filtered by a fuzzy term matched
// against names, numbers, tax IDs, the summary ID and the file path.
// Results are ordered by issue date, newest first.
func (r *InvoiceRepository) Search(ctx context.Context, term string) ([]domain.InvoiceRecord, error) {
	query := r.db.WithContext(ctx).Model(&domain.InvoiceRecord{})
	if term != "" {
		like := "%" + term + "%"
		query = query.Where(
			"buyer_name LIKE ? OR seller_name LIKE ? OR invoice_code LIKE ? OR invoice_number LIKE ? OR summary_id LIKE ? OR file_path LIKE ? OR buyer_tax_id LIKE ? OR seller_tax_id LIKE ?",
			like, like, like, like, like, like, like, like,
		)
	}
	var recs []domain.InvoiceRecord
	if err := query.Order("issue_date DESC, id DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Update persists edited fields of an existing record.
func (r *InvoiceRepository) Update(ctx context.Context, rec *domain.InvoiceRecord) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

// MarkIncomplete flags a record whose post-insert file copy failed. The
// row stays queryable but is distinguishable from fully archived records.
func (r *InvoiceRepository) MarkIncomplete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Model(&domain.InvoiceRecord{}).
		Where("id = ?", id).
		Update("status", domain.RecordStatusIncomplete).Error
}

// Delete removes a record by ID.
func (r *InvoiceRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&domain.InvoiceRecord{}, "id = ?", id).Error
}

// FilePaths returns the archive paths of all records.
func (r *InvoiceRepository) FilePaths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := r.db.WithContext(ctx).
		Model(&domain.InvoiceRecord{}).
		Pluck("file_path", &paths).Error; err != nil {
		return nil, err
	}
	return paths, nil
}

// ClearAll removes every invoice record.
func (r *InvoiceRepository) ClearAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.InvoiceRecord{}).Error
}
