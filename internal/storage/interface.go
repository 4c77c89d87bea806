// Package storage archives extracted invoice files. Records are only
// inserted into the database first; the file lands here afterwards, so
// the index never points at files that were never offered for storage.
package storage

import (
	"context"
	"io"
)

// FileStore is the archive destination for extracted documents. Keys
// are flat file names relative to the archive root.
type FileStore interface {
	// Put stores the content under key, overwriting any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Get opens the stored content for reading.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object; deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)
}
