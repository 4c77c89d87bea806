package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/service"
)

// UploadHandler accepts archive uploads and exposes job polling.
type UploadHandler struct {
	ingest    *service.IngestService
	jobs      *repository.JobRepository
	uploadDir string
}

// NewUploadHandler creates a new upload handler. uploadDir is created
// if missing.
func NewUploadHandler(ingest *service.IngestService, jobs *repository.JobRepository, uploadDir string) (*UploadHandler, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, err
	}
	return &UploadHandler{
		ingest:    ingest,
		jobs:      jobs,
		uploadDir: uploadDir,
	}, nil
}

// UploadResponse is returned when an archive is accepted.
type UploadResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// JobStatusResponse reports job progress to polling clients.
type JobStatusResponse struct {
	JobID    string              `json:"job_id"`
	Filename string              `json:"filename"`
	Status   domain.JobStatus    `json:"status"`
	Stats    *domain.IngestStats `json:"stats,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// Upload handles POST /upload. The archive is written to the upload
// directory under a generated name and queued for processing; clients
// poll Status with the returned job ID.
func (h *UploadHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}

	filename := filepath.Base(file.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".zip") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .zip archives are accepted"})
		return
	}

	dst := filepath.Join(h.uploadDir, uuid.New().String()+".zip")
	if err := c.SaveUploadedFile(file, dst); err != nil {
		logger.CtxError(ctx, "Failed to save upload: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save upload"})
		return
	}

	jobID, err := h.ingest.Submit(ctx, dst, filename)
	if err != nil {
		_ = os.Remove(dst)
		if errors.Is(err, service.ErrQueueFull) {
			c.Header("Retry-After", "5")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingest queue is full, retry later"})
			return
		}
		logger.CtxError(ctx, "Failed to submit job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue upload"})
		return
	}

	logger.CtxInfo(ctx, "Upload accepted: filename=%s, job_id=%s", filename, jobID)
	c.JSON(http.StatusAccepted, UploadResponse{
		JobID:   jobID,
		Message: "upload accepted, processing started",
	})
}

// Status handles GET /upload/status/:job_id.
func (h *UploadHandler) Status(c *gin.Context) {
	ctx := c.Request.Context()

	jobID := c.Param("job_id")
	job, err := h.jobs.GetByID(ctx, jobID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	resp := JobStatusResponse{
		JobID:    job.ID,
		Filename: job.Filename,
		Status:   job.Status,
	}
	if stats, ok := job.Stats(); ok {
		resp.Stats = &stats
	}
	if job.Status == domain.JobStatusFailed {
		resp.Error = job.Result
	}

	c.JSON(http.StatusOK, resp)
}

// Jobs handles GET /jobs, returning recent jobs newest first.
func (h *UploadHandler) Jobs(c *gin.Context) {
	ctx := c.Request.Context()

	jobs, err := h.jobs.List(ctx, 50)
	if err != nil {
		logger.CtxError(ctx, "Failed to list jobs: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list jobs"})
		return
	}

	out := make([]JobStatusResponse, 0, len(jobs))
	for i := range jobs {
		job := &jobs[i]
		resp := JobStatusResponse{
			JobID:    job.ID,
			Filename: job.Filename,
			Status:   job.Status,
		}
		if stats, ok := job.Stats(); ok {
			resp.Stats = &stats
		}
		if job.Status == domain.JobStatusFailed {
			resp.Error = job.Result
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusOK, gin.H{"jobs": out, "count": len(out)})
}
