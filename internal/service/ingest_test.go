package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hanlin/piaoju/internal/config"
	"github.com/hanlin/piaoju/internal/domain"
	"github.com/hanlin/piaoju/internal/extract"
	"github.com/hanlin/piaoju/internal/logger"
	"github.com/hanlin/piaoju/internal/pdfreader"
	"github.com/hanlin/piaoju/internal/repository"
	"github.com/hanlin/piaoju/internal/storage"
)

func testLogger() *logger.Logger {
	return logger.New(&logger.Config{Level: "error", Output: io.Discard})
}

// stubPage answers crops with the same canned text regardless of
// region; field patterns are label-anchored so that is enough.
type stubPage struct {
	text     string
	cropText string
}

func (p *stubPage) Text() string              { return p.text }
func (p *stubPage) Tables() []pdfreader.Table { return nil }
func (p *stubPage) CropText(context.Context, pdfreader.Region) (string, error) {
	return p.cropText, nil
}

type stubDoc struct {
	pages []pdfreader.Page
}

func (d *stubDoc) Pages() []pdfreader.Page { return d.pages }
func (d *stubDoc) Close() error            { return nil }

// stubOpener keys canned documents by base name and can be gated to
// hold workers inside extraction.
type stubOpener struct {
	docs map[string]pdfreader.Document
	gate chan struct{}
}

func (o *stubOpener) Open(_ context.Context, path string) (pdfreader.Document, error) {
	if o.gate != nil {
		<-o.gate
	}
	doc, ok := o.docs[filepath.Base(path)]
	if !ok {
		return nil, pdfreader.ErrCorruptDocument
	}
	return doc, nil
}

func invoiceDoc(code, number string) pdfreader.Document {
	return &stubDoc{pages: []pdfreader.Page{&stubPage{
		text: "电子普通发票\n价税合计(小写) ¥50.00",
		cropText: "名称: 某某运输公司\n发票代码: " + code + "\n发票号码: " + number +
			"\n开票日期: 2024-06-01\n合 计 ¥50.00",
	}}}
}

func testZip(t *testing.T, dir string, entries map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(dir, "upload.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

type testEnv struct {
	ingest   *IngestService
	jobs     *repository.JobRepository
	invoices *repository.InvoiceRepository
	store    storage.FileStore
	storeDir string
}

func newTestEnv(t *testing.T, opener pdfreader.Opener, opts *IngestOptions) *testEnv {
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

	storeDir := filepath.Join(tmp, "archive")
	store, err := storage.NewLocalStore(storeDir)
	if err != nil {
		t.Fatalf("init store: %v", err)
	}

	jobs := repository.NewJobRepository(db)
	invoices := repository.NewInvoiceRepository(db)
	extractor := extract.NewExtractor(opener)

	if opts == nil {
		opts = &IngestOptions{Workers: 1, QueueSize: 4, JobTimeout: 30 * time.Second}
	}
	svc := NewIngestService(jobs, invoices, store, extractor, testLogger(), opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Shutdown(ctx)
	})

	return &testEnv{ingest: svc, jobs: jobs, invoices: invoices, store: store, storeDir: storeDir}
}

func (env *testEnv) waitJob(t *testing.T, jobID string) *domain.IngestJob {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := env.jobs.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status.Terminal() {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", jobID)
	return nil
}

func TestIngestSingleInvoice(t *testing.T) {
	opener := &stubOpener{docs: map[string]pdfreader.Document{
		"fapiao.pdf": invoiceDoc("044001000001", "10000001"),
	}}
	env := newTestEnv(t, opener, nil)
	ctx := context.Background()

	archive := testZip(t, t.TempDir(), map[string][]byte{
		"fapiao.pdf": []byte("pdf bytes"),
	})

	jobID, err := env.ingest.Submit(ctx, archive, "fapiao.zip")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	job := env.waitJob(t, jobID)
	if job.Status != domain.JobStatusFinished {
		t.Fatalf("job status = %q (%s), want finished", job.Status, job.Result)
	}

	stats, ok := job.Stats()
	if !ok {
		t.Fatal("finished job carries no stats")
	}
	if stats.DocumentsFound != 1 || stats.Processed != 1 || stats.Inserted != 1 {
		t.Errorf("stats = %+v, want 1 found, 1 processed, 1 inserted", stats)
	}
	if stats.Skipped != 0 || stats.Duplicates != 0 {
		t.Errorf("stats = %+v, want no skips or duplicates", stats)
	}

	recs, err := env.invoices.Search(ctx, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("record count = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.InvoiceCode != "044001000001" || rec.InvoiceNumber != "10000001" {
		t.Errorf("record = %s/%s", rec.InvoiceCode, rec.InvoiceNumber)
	}
	if rec.TotalAmount != 50.00 {
		t.Errorf("TotalAmount = %v, want 50.00", rec.TotalAmount)
	}
	if rec.Status != domain.RecordStatusActive {
		t.Errorf("Status = %q, want active", rec.Status)
	}

	exists, err := env.store.Exists(ctx, rec.FilePath)
	if err != nil || !exists {
		t.Errorf("archived file %q missing (exists=%v, err=%v)", rec.FilePath, exists, err)
	}

	// The uploaded archive is consumed by the pipeline.
	if _, err := os.Stat(archive); !os.IsNotExist(err) {
		t.Errorf("uploaded archive should be removed after processing")
	}
}

func TestIngestDuplicateResubmission(t *testing.T) {
	opener := &stubOpener{docs: map[string]pdfreader.Document{
		"fapiao.pdf": invoiceDoc("044001000001", "10000001"),
	}}
	env := newTestEnv(t, opener, nil)
	ctx := context.Background()

	for round, want := range []struct{ inserted, duplicates int }{
		{1, 0},
		{0, 1},
	} {
		archive := testZip(t, t.TempDir(), map[string][]byte{
			"fapiao.pdf": []byte("pdf bytes"),
		})
		jobID, err := env.ingest.Submit(ctx, archive, "fapiao.zip")
		if err != nil {
			t.Fatalf("round %d Submit: %v", round, err)
		}
		job := env.waitJob(t, jobID)
		if job.Status != domain.JobStatusFinished {
			t.Fatalf("round %d status = %q (%s)", round, job.Status, job.Result)
		}
		stats, _ := job.Stats()
		if stats.Inserted != want.inserted || stats.Duplicates != want.duplicates {
			t.Errorf("round %d stats = %+v, want inserted=%d duplicates=%d",
				round, stats, want.inserted, want.duplicates)
		}
	}

	recs, err := env.invoices.Search(ctx, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(recs) != 1 {
		t.Errorf("record count = %d, want 1 (duplicate must not insert)", len(recs))
	}
}

func TestIngestSkipsUnrecognizedDocuments(t *testing.T) {
	opener := &stubOpener{docs: map[string]pdfreader.Document{
		"fapiao.pdf": invoiceDoc("044001000002", "10000002"),
		"cover.pdf": &stubDoc{pages: []pdfreader.Page{&stubPage{
			text: "通行费索取发票申请表",
		}}},
	}}
	env := newTestEnv(t, opener, nil)
	ctx := context.Background()

	archive := testZip(t, t.TempDir(), map[string][]byte{
		"fapiao.pdf": []byte("a"),
		"cover.pdf":  []byte("b"),
	})

	jobID, err := env.ingest.Submit(ctx, archive, "mixed.zip")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	job := env.waitJob(t, jobID)
	if job.Status != domain.JobStatusFinished {
		t.Fatalf("status = %q (%s)", job.Status, job.Result)
	}

	stats, _ := job.Stats()
	if stats.DocumentsFound != 2 || stats.Processed != 1 || stats.Inserted != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v, want found=2 processed=1 inserted=1 skipped=1", stats)
	}
}

func TestIngestQueueFull(t *testing.T) {
	gate := make(chan struct{})
	opener := &stubOpener{
		docs: map[string]pdfreader.Document{
			"fapiao.pdf": invoiceDoc("044001000003", "10000003"),
		},
		gate: gate,
	}
	env := newTestEnv(t, opener, &IngestOptions{
		Workers:    1,
		QueueSize:  1,
		JobTimeout: 30 * time.Second,
	})
	ctx := context.Background()

	submit := func() (string, error) {
		archive := testZip(t, t.TempDir(), map[string][]byte{
			"fapiao.pdf": []byte("pdf"),
		})
		return env.ingest.Submit(ctx, archive, "fapiao.zip")
	}

	// First job occupies the worker inside extraction, second fills the
	// queue slot.
	first, err := submit()
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	waitProcessing(t, env, first)

	if _, err := submit(); err != nil {
		t.Fatalf("second Submit: %v", err)
	}

	_, err = submit()
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("third Submit error = %v, want ErrQueueFull", err)
	}

	// The rejected submission must be recorded as a failed job.
	jobs, listErr := env.jobs.List(ctx, 10)
	if listErr != nil {
		t.Fatalf("list jobs: %v", listErr)
	}
	failed := 0
	for _, j := range jobs {
		if j.Status == domain.JobStatusFailed {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("failed jobs = %d, want 1", failed)
	}

	close(gate)
}

// waitProcessing blocks until the job leaves the queued state.
func waitProcessing(t *testing.T, env *testEnv, jobID string) {
	t.Helper()

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := env.jobs.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status != domain.JobStatusQueued {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never started processing", jobID)
}
