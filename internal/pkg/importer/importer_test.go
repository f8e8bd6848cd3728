package importer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/app/repository"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
)

// --- in-memory fakes -------------------------------------------------------

type fakeJobRepo struct {
	jobs map[string]*models.ImportJob
}

func newFakeJobRepo(jobs ...*models.ImportJob) *fakeJobRepo {
	repo := &fakeJobRepo{jobs: make(map[string]*models.ImportJob)}
	for _, job := range jobs {
		clone := *job
		repo.jobs[job.ID] = &clone
	}
	return repo
}

func (f *fakeJobRepo) Create(job *models.ImportJob) error {
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobRepo) GetByID(id string) (*models.ImportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobRepo) ClaimForProcessing(id string) (*models.ImportJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	job.Status = models.ImportJobStatusProcessing
	job.Progress = 0
	job.ProcessedRecords = 0
	job.ErrorMessage = nil
	clone := *job
	return &clone, nil
}

func (f *fakeJobRepo) Save(job *models.ImportJob) error {
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobRepo) MarkCompleted(job *models.ImportJob) error {
	job.Status = models.ImportJobStatusCompleted
	job.Progress = 100
	return f.Save(job)
}

func (f *fakeJobRepo) MarkFailed(job *models.ImportJob, message string) error {
	job.Status = models.ImportJobStatusFailed
	job.Progress = 0
	job.ErrorMessage = &message
	return f.Save(job)
}

type fakeProductRepo struct {
	byNormalized map[string]*models.Product
	nextID       uint
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{byNormalized: make(map[string]*models.Product), nextID: 1}
}

func (f *fakeProductRepo) Create(p *models.Product) error { return nil }
func (f *fakeProductRepo) GetByID(uint) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeProductRepo) GetBySKUNormalized(string) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}
func (f *fakeProductRepo) List(repository.ProductFilter) ([]models.Product, int64, error) {
	return nil, 0, nil
}
func (f *fakeProductRepo) Update(*models.Product) error { return nil }
func (f *fakeProductRepo) Delete(uint) error            { return nil }
func (f *fakeProductRepo) DeleteAll() (int64, error)    { return 0, nil }

func (f *fakeProductRepo) ExistingSKUs(keys []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	for _, key := range keys {
		if _, ok := f.byNormalized[key]; ok {
			existing[key] = struct{}{}
		}
	}
	return existing, nil
}

func (f *fakeProductRepo) UpsertBatch(products []models.Product) error {
	for i := range products {
		row := products[i]
		if current, ok := f.byNormalized[row.SKUNormalized]; ok {
			current.Name = row.Name
			current.SKU = row.SKU
			current.Description = row.Description
			current.UpdatedAt = time.Now()
			continue
		}
		row.ID = f.nextID
		f.nextID++
		row.CreatedAt = time.Now()
		row.UpdatedAt = row.CreatedAt
		f.byNormalized[row.SKUNormalized] = &row
	}
	return nil
}

func (f *fakeProductRepo) FindBySKUNormalizedIn(keys []string) ([]models.Product, error) {
	var out []models.Product
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if p, ok := f.byNormalized[key]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type event struct {
	Type    string
	Payload map[string]interface{}
}

type fakeNotifier struct {
	events []event
}

func (f *fakeNotifier) Notify(ctx context.Context, eventType string, payload map[string]interface{}, webhookIDs ...uint) {
	f.events = append(f.events, event{Type: eventType, Payload: payload})
}

func (f *fakeNotifier) ofType(eventType string) []event {
	var out []event
	for _, e := range f.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeSink struct {
	snapshots []progress.Snapshot
	clears    int
}

func (f *fakeSink) Publish(ctx context.Context, jobID string, snap progress.Snapshot) error {
	f.snapshots = append(f.snapshots, snap)
	return nil
}

func (f *fakeSink) Clear(ctx context.Context, jobID string) error {
	f.clears++
	return nil
}

// --- harness ---------------------------------------------------------------

type harness struct {
	svc      *Service
	jobs     *fakeJobRepo
	products *fakeProductRepo
	notifier *fakeNotifier
	sink     *fakeSink
	store    *uploadstore.LocalStore
	dir      string
}

func newHarness(t *testing.T, batchSize int, jobs ...*models.ImportJob) *harness {
	t.Helper()
	dir := t.TempDir()
	store, err := uploadstore.NewLocalStore(dir)
	require.NoError(t, err)

	jobRepo := newFakeJobRepo(jobs...)
	productRepo := newFakeProductRepo()
	notifier := &fakeNotifier{}
	sink := &fakeSink{}

	svc := New(jobRepo, productRepo, sink, notifier, store, batchSize)
	svc.grace = 0

	return &harness{
		svc:      svc,
		jobs:     jobRepo,
		products: productRepo,
		notifier: notifier,
		sink:     sink,
		store:    store,
		dir:      dir,
	}
}

func stageCSV(t *testing.T, h *harness, key, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(h.dir, key), []byte(content), 0o644))
}

func pendingJob(id, fileKey string) *models.ImportJob {
	name := "products.csv"
	contentType := "text/csv"
	return &models.ImportJob{
		ID:               id,
		Status:           models.ImportJobStatusPending,
		FilePath:         &fileKey,
		OriginalFilename: &name,
		ContentType:      &contentType,
	}
}

// --- tests -----------------------------------------------------------------

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "upload.csv"))
	stageCSV(t, h, "upload.csv", "name,sku,description\nWidget,SKU-1,Example\nGadget,SKU-2,Example\n")

	result := h.svc.Run(context.Background(), "job-1")

	require.True(t, result.Succeeded())

	job := h.jobs.jobs["job-1"]
	assert.Equal(t, models.ImportJobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 2, job.ProcessedRecords)
	require.NotNil(t, job.TotalRecords)
	assert.Equal(t, 2, *job.TotalRecords)
	assert.Nil(t, job.FilePath)
	assert.Nil(t, job.ErrorMessage)

	// Both products created with normalized SKUs
	assert.Len(t, h.products.byNormalized, 2)
	assert.Contains(t, h.products.byNormalized, "sku-1")
	assert.Contains(t, h.products.byNormalized, "sku-2")

	created := h.notifier.ofType(models.WebhookEventProductCreated)
	require.Len(t, created, 2)
	completed := h.notifier.ofType(models.WebhookEventImportCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "job-1", completed[0].Payload["job_id"])
	assert.Equal(t, 2, completed[0].Payload["processed_records"])
	assert.Equal(t, 2, completed[0].Payload["total_records"])

	// Source file removed from the store
	_, statErr := os.Stat(filepath.Join(h.dir, "upload.csv"))
	assert.True(t, os.IsNotExist(statErr))

	// Stale clear at claim time plus the final clear after the grace window
	assert.Equal(t, 2, h.sink.clears)
	last := h.sink.snapshots[len(h.sink.snapshots)-1]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, 100, *last.Progress)
	assert.Equal(t, "Import completed successfully", last.Message)
}

func TestRunReimportUpdatesExistingProducts(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "first.csv"), pendingJob("job-2", "second.csv"))
	stageCSV(t, h, "first.csv", "name,sku,description\nWidget,SKU-1,Example\n")
	stageCSV(t, h, "second.csv", "name,sku,description\nNew Widget,SKU-1,New desc\n")

	require.True(t, h.svc.Run(context.Background(), "job-1").Succeeded())
	originalID := h.products.byNormalized["sku-1"].ID

	require.True(t, h.svc.Run(context.Background(), "job-2").Succeeded())

	product := h.products.byNormalized["sku-1"]
	assert.Equal(t, originalID, product.ID)
	assert.Equal(t, "New Widget", product.Name)
	require.NotNil(t, product.Description)
	assert.Equal(t, "New desc", *product.Description)
	assert.Len(t, h.products.byNormalized, 1)

	updated := h.notifier.ofType(models.WebhookEventProductUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, "sku-1", updated[0].Payload["sku_normalized"])
}

func TestRunDuplicateSKUWithinBatchLastWriteWins(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "dup.csv"))
	stageCSV(t, h, "dup.csv", "name,sku,description\nA,SKU-1,\nB,sku-1,\n")

	result := h.svc.Run(context.Background(), "job-1")

	require.True(t, result.Succeeded())
	require.Len(t, h.products.byNormalized, 1)
	assert.Equal(t, "B", h.products.byNormalized["sku-1"].Name)

	// Raw rows, not unique keys, drive the processed counter
	job := h.jobs.jobs["job-1"]
	assert.Equal(t, 2, job.ProcessedRecords)
	assert.Equal(t, 2, *job.TotalRecords)

	// One affected product, one event
	created := h.notifier.ofType(models.WebhookEventProductCreated)
	assert.Len(t, created, 1)
}

func TestRunProgressMonotonicAcrossBatches(t *testing.T) {
	h := newHarness(t, 1, pendingJob("job-1", "many.csv"))
	stageCSV(t, h, "many.csv", "name,sku,description\nA,S-1,\nB,S-2,\nC,S-3,\nD,S-4,\n")

	require.True(t, h.svc.Run(context.Background(), "job-1").Succeeded())

	previous := -1
	for _, snap := range h.sink.snapshots {
		if snap.Progress == nil {
			continue
		}
		assert.GreaterOrEqual(t, *snap.Progress, previous)
		assert.LessOrEqual(t, *snap.Progress, 100)
		previous = *snap.Progress
	}
	assert.Equal(t, 100, h.jobs.jobs["job-1"].Progress)
}

func TestRunMissingFilePath(t *testing.T) {
	job := &models.ImportJob{ID: "job-1", Status: models.ImportJobStatusPending}
	h := newHarness(t, 0, job)

	result := h.svc.Run(context.Background(), "job-1")

	assert.False(t, result.Succeeded())
	assert.False(t, result.Retryable())
	assert.Equal(t, "Upload reference missing; cannot process.", result.Message())

	stored := h.jobs.jobs["job-1"]
	assert.Equal(t, models.ImportJobStatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "Upload reference missing; cannot process.", *stored.ErrorMessage)

	failed := h.notifier.ofType(models.WebhookEventImportFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, "Upload reference missing; cannot process.", failed[0].Payload["message"])
}

func TestRunMissingBlob(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "vanished.csv"))

	result := h.svc.Run(context.Background(), "job-1")

	assert.False(t, result.Succeeded())
	assert.False(t, result.Retryable())
	assert.Equal(t, "Uploaded CSV file no longer exists on the server.", result.Message())
	assert.Equal(t, models.ImportJobStatusFailed, h.jobs.jobs["job-1"].Status)
}

func TestRunMissingColumnFailsValidation(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "nocol.csv"))
	stageCSV(t, h, "nocol.csv", "name,description\nWidget,Example\n")

	result := h.svc.Run(context.Background(), "job-1")

	assert.False(t, result.Succeeded())
	assert.False(t, result.Retryable())
	assert.Contains(t, result.Message(), "sku")
	assert.Empty(t, h.products.byNormalized)
	assert.Equal(t, models.ImportJobStatusFailed, h.jobs.jobs["job-1"].Status)
}

func TestRunEmptyNameRowFailsBeforeAnyCommit(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "badrow.csv"))
	stageCSV(t, h, "badrow.csv", "name,sku,description\n,SKU-1,Example\n")

	result := h.svc.Run(context.Background(), "job-1")

	assert.False(t, result.Succeeded())
	assert.False(t, result.Retryable())
	assert.Contains(t, result.Message(), "'name' and 'sku'")
	assert.Empty(t, h.products.byNormalized)

	stored := h.jobs.jobs["job-1"]
	assert.Equal(t, models.ImportJobStatusFailed, stored.Status)
	assert.Nil(t, stored.FilePath)
}

func TestRunJobNotFoundIsDroppedSilently(t *testing.T) {
	h := newHarness(t, 0)

	result := h.svc.Run(context.Background(), "ghost")

	assert.True(t, result.Succeeded())
	assert.Empty(t, h.notifier.events)
}

func TestRunRerunSameJobIsIdempotent(t *testing.T) {
	h := newHarness(t, 0, pendingJob("job-1", "again.csv"))
	content := "name,sku,description\nWidget,SKU-1,Example\nGadget,SKU-2,Example\n"
	stageCSV(t, h, "again.csv", content)

	require.True(t, h.svc.Run(context.Background(), "job-1").Succeeded())

	// Simulate an at-least-once redelivery: restore the file reference and
	// blob, then run the same id again.
	key := "again.csv"
	h.jobs.jobs["job-1"].FilePath = &key
	stageCSV(t, h, key, content)

	require.True(t, h.svc.Run(context.Background(), "job-1").Succeeded())

	assert.Len(t, h.products.byNormalized, 2)
	job := h.jobs.jobs["job-1"]
	assert.Equal(t, 2, job.ProcessedRecords)
	assert.Equal(t, 100, job.Progress)
}

func TestQueueHandlerTranslatesResults(t *testing.T) {
	h := newHarness(t, 0, pendingJob("ok", "ok.csv"))
	stageCSV(t, h, "ok.csv", "name,sku,description\nWidget,SKU-1,\n")
	handler := QueueHandler(h.svc)
	ctx := context.Background()

	// Success -> nil
	err := handler(ctx, &jobqueue.Job{Payload: jobqueue.CSVImportPayload{ImportJobID: "ok"}.ToMap()})
	assert.NoError(t, err)

	// Terminal failure -> permanent error
	h2 := newHarness(t, 0, &models.ImportJob{ID: "bad", Status: models.ImportJobStatusPending})
	err = QueueHandler(h2.svc)(ctx, &jobqueue.Job{Payload: jobqueue.CSVImportPayload{ImportJobID: "bad"}.ToMap()})
	require.Error(t, err)
	assert.True(t, jobqueue.IsPermanent(err))

	// Missing job id -> permanent error
	err = handler(ctx, &jobqueue.Job{Payload: map[string]interface{}{}})
	require.Error(t, err)
	assert.True(t, jobqueue.IsPermanent(err))
}

func TestCalculateProgress(t *testing.T) {
	total := func(v int) *int { return &v }

	tests := []struct {
		name      string
		processed int
		total     *int
		expected  int
	}{
		{"no total", 10, nil, 0},
		{"zero total", 10, total(0), 0},
		{"half", 50, total(100), 50},
		{"floors", 1, total(3), 33},
		{"caps at 100", 150, total(100), 100},
		{"complete", 100, total(100), 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, calculateProgress(tt.processed, tt.total))
		})
	}
}
