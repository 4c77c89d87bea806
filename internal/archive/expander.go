// Package archive recursively expands uploaded zip archives into a flat
// directory of documents.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hanlin/piaoju/internal/logger"
)

// DefaultMaxExtractions bounds the total number of unpack operations per
// expansion. A crafted archive that nests indefinitely or fans out
// combinatorially cannot exceed this amount of work.
const DefaultMaxExtractions = 20

// Expander unpacks a root archive and any nested archives found inside
// it, copying every discovered document into a flat output directory.
type Expander struct {
	// MaxExtractions caps unpack operations; zero means
	// DefaultMaxExtractions.
	MaxExtractions int
}

type queueItem struct {
	path  string
	level int
}

// Expand processes rootArchive and writes every found .pdf into
// outputDir, resolving name collisions with a numeric suffix. Nested
// .zip files are queued for expansion; other archive formats are logged
// and skipped. Corrupt archives at any queue position are skipped.
// Returns the number of documents copied.
func (e *Expander) Expand(ctx context.Context, rootArchive, outputDir string) (int, error) {
	maxExtractions := e.MaxExtractions
	if maxExtractions <= 0 {
		maxExtractions = DefaultMaxExtractions
	}

	scratch, err := os.MkdirTemp("", "piaoju-expand-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create expansion scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	found := 0
	queue := []queueItem{{path: rootArchive, level: 0}}
	extractions := 0

	for len(queue) > 0 && extractions < maxExtractions {
		if err := ctx.Err(); err != nil {
			return found, err
		}

		item := queue[0]
		queue = queue[1:]
		extractions++

		extractDir := filepath.Join(scratch, fmt.Sprintf("extract_%d", extractions))
		if err := os.MkdirAll(extractDir, 0755); err != nil {
			return found, fmt.Errorf("failed to create extract dir: %w", err)
		}

		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldArchive: filepath.Base(item.path),
			"level":             item.level,
		}).Info("Expanding archive")

		if err := unzip(item.path, extractDir); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldArchive, filepath.Base(item.path)).
				Warn("Skipping corrupt archive")
			continue
		}

		err := filepath.WalkDir(extractDir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			name := strings.ToLower(d.Name())
			switch {
			case strings.HasSuffix(name, ".pdf"):
				target, err := copyDocument(path, outputDir, d.Name())
				if err != nil {
					return err
				}
				found++
				logger.CtxDebug(ctx, "Copied document %s", filepath.Base(target))
			case strings.HasSuffix(name, ".zip"):
				queue = append(queue, queueItem{path: path, level: item.level + 1})
			case strings.HasSuffix(name, ".rar"), strings.HasSuffix(name, ".7z"):
				logger.CtxWarn(ctx, "Unsupported archive format, skipping: %s", d.Name())
			}
			return nil
		})
		if err != nil {
			// Walk errors here mean the output directory itself is
			// unwritable; that is fatal for the expansion.
			return found, fmt.Errorf("failed to collect documents: %w", err)
		}
	}

	logger.CtxInfo(ctx, "Expansion complete: %d documents found", found)
	return found, nil
}

// copyDocument places src into outputDir under its base name, appending
// _1, _2, ... before the extension when the name is taken.
func copyDocument(src, outputDir, name string) (string, error) {
	target := filepath.Join(outputDir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(target); os.IsNotExist(err) {
			break
		}
		target = filepath.Join(outputDir, fmt.Sprintf("%s_%d%s", stem, counter, ext))
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.Create(target)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", err
	}
	return target, nil
}

// unzip extracts every entry of the archive at src into dest, refusing
// entries whose resolved path escapes dest.
func unzip(src, dest string) error {
	reader, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer reader.Close()

	for _, f := range reader.File {
		target := filepath.Join(dest, filepath.Clean(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes extraction dir: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := extractEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}
