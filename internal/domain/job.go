package domain

import (
	"encoding/json"
	"time"
)

// JobStatus represents the status of an ingest job.
// Values include JobStatusQueued, JobStatusProcessing, JobStatusFinished,
// and JobStatusFailed. The two terminal states are final: once a job is
// finished or failed it is never transitioned again.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusFinished   JobStatus = "finished"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// IngestJob tracks one archive submission through the pipeline. Result
// holds JSON: an IngestStats payload when finished, a diagnostic string
// when failed, and is empty while queued or processing.
type IngestJob struct {
	ID        string    `gorm:"type:text;primaryKey" json:"id"`
	Filename  string    `gorm:"type:text;not null" json:"filename"`
	Status    JobStatus `gorm:"type:text;default:queued;index" json:"status"`
	Result    string    `gorm:"type:text" json:"result,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for IngestJob.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}

// IngestStats is the aggregate result attached to a finished job.
type IngestStats struct {
	Processed      int `json:"processed"`
	Inserted       int `json:"inserted"`
	Skipped        int `json:"skipped"`
	Duplicates     int `json:"duplicates"`
	DocumentsFound int `json:"documents_found"`
}

// Stats decodes the job result as IngestStats. Returns false when the
// job is not finished or the payload does not decode.
func (j *IngestJob) Stats() (IngestStats, bool) {
	if j.Status != JobStatusFinished || j.Result == "" {
		return IngestStats{}, false
	}
	var s IngestStats
	if err := json.Unmarshal([]byte(j.Result), &s); err != nil {
		return IngestStats{}, false
	}
	return s, true
}
