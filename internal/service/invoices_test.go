package service

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/hanlin/piaoju/internal/config"
	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/storage"
)

func TestFormatCurrency(t *testing.T) {
	testCases := []struct {
		input float64
		want  string
	}{
		{0, "¥0.00"},
		{5.5, "¥5.50"},
		{1234.56, "¥1,234.56"},
		{1234567.89, "¥1,234,567.89"},
		{-9876.5, "¥-9,876.50"},
		{100, "¥100.00"},
		{1000, "¥1,000.00"},
	}

	for _, tc := range testCases {
		if got := formatCurrency(tc.input); got != tc.want {
			t.Errorf("formatCurrency(%v) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func newInvoiceEnv(t *testing.T) (*InvoiceService, *repository.InvoiceRepository, storage.FileStore) {
	t.Helper()

	tmp := t.TempDir()
	db, err := repository.InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(tmp, "test.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("init db: %v", err)
	}

	store, err := storage.NewLocalStore(filepath.Join(tmp, "archive"))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}

	invoices := repository.NewInvoiceRepository(db)
	jobs := repository.NewJobRepository(db)
	svc := NewInvoiceService(invoices, jobs, store, testLogger())
	return svc, invoices, store
}

func seedRecord(t *testing.T, invoices *repository.InvoiceRepository, code, number string, amount, total float64, filePath string) *domain.InvoiceRecord {
	t.Helper()

	rec := &domain.InvoiceRecord{
		Kind:          domain.KindInvoice,
		InvoiceCode:   code,
		InvoiceNumber: number,
		IssueDate:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Amount:        amount,
		TotalAmount:   total,
		BuyerName:     "某某公司",
		FilePath:      filePath,
		Status:        domain.RecordStatusActive,
	}
	if err := invoices.Insert(context.Background(), rec); err != nil {
		t.Fatalf("seed record: %v", err)
	}
	return rec
}

func TestSearchAggregates(t *testing.T) {
	svc, invoices, _ := newInvoiceEnv(t)
	ctx := context.Background()

	seedRecord(t, invoices, "0440", "001", 100.00, 113.00, "")
	seedRecord(t, invoices, "0440", "002", 1134.56, 1282.05, "")

	recs, summary, err := svc.Search(ctx, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if summary.TotalCount != 2 {
		t.Errorf("TotalCount = %d, want 2", summary.TotalCount)
	}
	if summary.TotalAmount != "¥1,234.56" {
		t.Errorf("TotalAmount = %q, want ¥1,234.56", summary.TotalAmount)
	}
	if summary.TotalTaxAmount != "¥1,395.05" {
		t.Errorf("TotalTaxAmount = %q, want ¥1,395.05", summary.TotalTaxAmount)
	}
}

func TestSearchFiltersByTerm(t *testing.T) {
	svc, invoices, _ := newInvoiceEnv(t)
	ctx := context.Background()

	seedRecord(t, invoices, "0440", "88880001", 1, 1, "")
	seedRecord(t, invoices, "0440", "99990002", 1, 1, "")

	recs, summary, err := svc.Search(ctx, "8888")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 1 || summary.TotalCount != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].InvoiceNumber != "88880001" {
		t.Errorf("InvoiceNumber = %q", recs[0].InvoiceNumber)
	}
}

func TestDeleteRemovesRecordAndFile(t *testing.T) {
	svc, invoices, store := newInvoiceEnv(t)
	ctx := context.Background()

	if err := store.Put(ctx, "doc.pdf", bytes.NewReader([]byte("content"))); err != nil {
		t.Fatalf("put file: %v", err)
	}
	rec := seedRecord(t, invoices, "0440", "001", 1, 1, "doc.pdf")

	if err := svc.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := invoices.GetByID(ctx, rec.ID); err == nil {
		t.Error("record still present after Delete")
	}
	exists, err := store.Exists(ctx, "doc.pdf")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Error("archived file still present after Delete")
	}
}

func TestClearAll(t *testing.T) {
	svc, invoices, store := newInvoiceEnv(t)
	ctx := context.Background()

	for i, key := range []string{"a.pdf", "b.pdf"} {
		if err := store.Put(ctx, key, bytes.NewReader([]byte("x"))); err != nil {
			t.Fatalf("put: %v", err)
		}
		seedRecord(t, invoices, "0440", string(rune('1'+i)), 1, 1, key)
	}

	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll: %v", err)
	}

	recs, _, err := svc.Search(ctx, "")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records = %d after ClearAll, want 0", len(recs))
	}
	for _, key := range []string{"a.pdf", "b.pdf"} {
		exists, err := store.Exists(ctx, key)
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if exists {
			t.Errorf("file %s still present after ClearAll", key)
		}
	}
}

func TestOpenStreamsArchivedFile(t *testing.T) {
	svc, invoices, store := newInvoiceEnv(t)
	ctx := context.Background()

	if err := store.Put(ctx, "doc.pdf", bytes.NewReader([]byte("pdf content"))); err != nil {
		t.Fatalf("put: %v", err)
	}
	rec := seedRecord(t, invoices, "0440", "001", 1, 1, "doc.pdf")

	rc, err := svc.Open(ctx, rec)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "pdf content" {
		t.Errorf("content = %q", data)
	}

	// A record without a file path cannot be opened.
	bare := seedRecord(t, invoices, "0440", "002", 1, 1, "")
	if _, err := svc.Open(ctx, bare); err == nil {
		t.Error("Open on record without file should fail")
	}
}
