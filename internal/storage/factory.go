package storage

import (
	"fmt"

	"github.com/hanlin/piaoju/internal/config"
)

// NewFileStore creates a FileStore based on the configuration. The
// local driver is the default; "s3" selects an S3-compatible bucket.
func NewFileStore(cfg *config.StorageConfig, archiveDir string) (FileStore, error) {
	switch cfg.Type {
	case "", "local":
		return NewLocalStore(archiveDir)
	case "s3":
		return NewS3Store(&S3Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
