// Package pdfreader defines the document text/table extraction contract
// consumed by the field extractor, plus an HTTP client implementation
// backed by an extraction sidecar.
package pdfreader

import (
	"context"
	"errors"
)

// ErrCorruptDocument reports that a document could not be opened or
// parsed. Callers skip the document and continue the batch.
var ErrCorruptDocument = errors.New("corrupt or unreadable document")

// Region describes a rectangular page area as fractions of page width
// and height, so crops are resolution-independent.
type Region struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// Table is a grid of cells as extracted from a page. Empty cells are
// empty strings.
type Table [][]string

// Page exposes the text content of one document page.
type Page interface {
	// Text returns the full plain text of the page.
	Text() string

	// Tables returns every table detected on the page.
	Tables() []Table

	// CropText returns the text inside the given proportional region.
	CropText(ctx context.Context, r Region) (string, error)
}

// Document is an ordered sequence of pages.
type Document interface {
	Pages() []Page
	Close() error
}

// Opener produces a Document from a file path. Implementations return
// an error wrapping ErrCorruptDocument on malformed input.
type Opener interface {
	Open(ctx context.Context, path string) (Document, error)
}
