package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hanlin/piaoju/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles ingest job persistence. Status transitions are
// driven exclusively by the ingest service; everything else only reads.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job in the queued state and returns it.
func (r *JobRepository) Create(ctx context.Context, filename string) (*domain.IngestJob, error) {
	job := &domain.IngestJob{
		ID:       uuid.New().String(),
		Filename: filename,
		Status:   domain.JobStatusQueued,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// UpdateStatus sets the job status and, when result is non-nil, its
// result payload. A map or struct result is stored as JSON; a string is
// stored as-is.
func (r *JobRepository) UpdateStatus(ctx context.Context, id string, status domain.JobStatus, result interface{}) error {
	updates := map[string]interface{}{"status": status}
	switch v := result.(type) {
	case nil:
	case string:
		updates["result"] = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		updates["result"] = string(b)
	}
	return r.db.WithContext(ctx).
		Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns jobs newest first.
func (r *JobRepository) List(ctx context.Context, limit int) ([]domain.IngestJob, error) {
	var jobs []domain.IngestJob
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// ClearAll removes every job record.
func (r *JobRepository) ClearAll(ctx context.Context) error {
	return r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&domain.IngestJob{}).Error
}
