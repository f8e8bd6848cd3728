package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/app/repository"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/csvimport"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
)

const (
	msgMissingUpload    = "Upload reference missing; cannot process."
	msgUnexpectedCount  = "Unexpected error preparing import."
	msgUnexpectedImport = "Unexpected error processing CSV."
	msgCompleted        = "Import completed successfully"

	// completionGrace keeps the final snapshot readable for late stream
	// subscribers before it is cleared.
	completionGrace = 2 * time.Second
)

// ProgressSink is the ephemeral progress capability the orchestrator
// publishes to. *progress.Publisher satisfies it.
type ProgressSink interface {
	Publish(ctx context.Context, jobID string, snap progress.Snapshot) error
	Clear(ctx context.Context, jobID string) error
}

// Notifier fans a webhook event out to subscribers. *webhook.Dispatcher
// satisfies it.
type Notifier interface {
	Notify(ctx context.Context, eventType string, payload map[string]interface{}, webhookIDs ...uint)
}

// Service owns the import job state machine. One Run processes one job id
// end to end; the row lock taken at claim time guarantees a single worker
// per job even when the queue delivers the id twice.
type Service struct {
	jobs     repository.ImportJobRepository
	products repository.ProductRepository
	progress ProgressSink
	notifier Notifier
	store    uploadstore.Store

	batchSize int
	grace     time.Duration
}

// New wires the orchestrator. batchSize <= 0 falls back to the reader's
// default window.
func New(
	jobs repository.ImportJobRepository,
	products repository.ProductRepository,
	sink ProgressSink,
	notifier Notifier,
	store uploadstore.Store,
	batchSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = csvimport.DefaultBatchSize
	}
	return &Service{
		jobs:      jobs,
		products:  products,
		progress:  sink,
		notifier:  notifier,
		store:     store,
		batchSize: batchSize,
		grace:     completionGrace,
	}
}

// Run drives one import job through pending -> processing -> terminal.
// Re-running the same id is safe: the upsert is keyed by normalized SKU and
// the claim resets the counters, so a queue-level retry replays the whole
// file without creating duplicates.
func (s *Service) Run(ctx context.Context, jobID string) Result {
	log.Infof("[Importer] Job %s received by worker", jobID)

	job, err := s.jobs.ClaimForProcessing(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Nothing meaningful to retry; the job row is gone
			log.Errorf("[Importer] Import job %s not found", jobID)
			return Success()
		}
		return RetryableFailure(fmt.Errorf("claim import job %s: %w", jobID, err))
	}

	// Drop leftover progress from previous runs for the same job id
	if err := s.progress.Clear(ctx, job.ID); err != nil {
		log.Warnf("[Importer] Job %s: failed to clear stale progress: %v", job.ID, err)
	}

	if job.FilePath == nil || *job.FilePath == "" {
		log.Errorf("[Importer] Import job %s missing file path", job.ID)
		return s.failTerminal(ctx, job, msgMissingUpload)
	}
	fileKey := *job.FilePath

	s.publish(ctx, job.ID, progress.Snapshot{
		Status:   string(models.ImportJobStatusProcessing),
		Progress: intPtr(0),
		Phase:    "counting",
		Message:  "Counting CSV rows",
	})

	localPath, cleanupStage, err := s.store.Stage(ctx, fileKey)
	if err != nil {
		if errors.Is(err, uploadstore.ErrNotFound) {
			return s.failTerminal(ctx, job, "Uploaded CSV file no longer exists on the server.")
		}
		s.markFailed(ctx, job, msgUnexpectedCount)
		return RetryableFailure(fmt.Errorf("stage upload for job %s: %w", job.ID, err))
	}
	defer cleanupStage()

	log.Infof("[Importer] Job %s: starting counting for file %s", job.ID, fileKey)
	total, err := csvimport.CountRecords(localPath)
	if err != nil {
		var validation *csvimport.ValidationError
		if errors.As(err, &validation) {
			log.Errorf("[Importer] CSV validation failed for job %s: %v", job.ID, err)
			return s.failTerminal(ctx, job, validation.Message)
		}
		log.Errorf("[Importer] Unexpected error counting rows for job %s: %v", job.ID, err)
		s.markFailed(ctx, job, msgUnexpectedCount)
		s.removeSource(ctx, job)
		return RetryableFailure(fmt.Errorf("count rows for job %s: %w", job.ID, err))
	}
	log.Infof("[Importer] Job %s: counting completed, total=%d", job.ID, total)

	job.TotalRecords = &total
	job.ProcessedRecords = 0
	if err := s.jobs.Save(job); err != nil {
		s.markFailed(ctx, job, msgUnexpectedCount)
		s.removeSource(ctx, job)
		return RetryableFailure(fmt.Errorf("persist total for job %s: %w", job.ID, err))
	}

	s.publish(ctx, job.ID, progress.Snapshot{
		Status:   string(models.ImportJobStatusProcessing),
		Progress: intPtr(0),
		Phase:    "importing",
		Message:  "Starting import",
		Total:    intPtr(total),
	})

	err = csvimport.ReadBatches(localPath, s.batchSize, func(batch csvimport.Batch) error {
		return s.processBatch(ctx, job, batch)
	})
	s.removeSource(ctx, job)
	if err != nil {
		var validation *csvimport.ValidationError
		if errors.As(err, &validation) {
			log.Errorf("[Importer] CSV processing failed for job %s: %v", job.ID, err)
			return s.failTerminal(ctx, job, validation.Message)
		}
		log.Errorf("[Importer] Unexpected error processing job %s: %v", job.ID, err)
		s.markFailed(ctx, job, msgUnexpectedImport)
		return RetryableFailure(fmt.Errorf("process batches for job %s: %w", job.ID, err))
	}

	if err := s.jobs.MarkCompleted(job); err != nil {
		s.markFailed(ctx, job, msgUnexpectedImport)
		return RetryableFailure(fmt.Errorf("mark job %s completed: %w", job.ID, err))
	}

	totalRecords := 0
	if job.TotalRecords != nil {
		totalRecords = *job.TotalRecords
	}
	s.notifier.Notify(ctx, models.WebhookEventImportCompleted, map[string]interface{}{
		"job_id":            job.ID,
		"processed_records": job.ProcessedRecords,
		"total_records":     totalRecords,
	})

	s.publish(ctx, job.ID, progress.Snapshot{
		Status:    string(models.ImportJobStatusCompleted),
		Progress:  intPtr(100),
		Processed: intPtr(job.ProcessedRecords),
		Total:     intPtr(totalRecords),
		Message:   msgCompleted,
	})

	// Allow clients to observe completion for a short window, then clear
	select {
	case <-time.After(s.grace):
	case <-ctx.Done():
	}
	if err := s.progress.Clear(ctx, job.ID); err != nil {
		log.Warnf("[Importer] Job %s: failed to clear final progress: %v", job.ID, err)
	}

	log.Infof("[Importer] Job %s completed: processed=%d total=%d", job.ID, job.ProcessedRecords, totalRecords)
	return Success()
}

// processBatch upserts one deduplicated window and emits per-product events.
func (s *Service) processBatch(ctx context.Context, job *models.ImportJob, batch csvimport.Batch) error {
	keys := make([]string, 0, len(batch.Rows))
	rows := make([]models.Product, 0, len(batch.Rows))
	for key, record := range batch.Rows {
		keys = append(keys, key)
		rows = append(rows, models.Product{
			Name:          record.Name,
			SKU:           record.SKU,
			SKUNormalized: record.SKUNormalized,
			Description:   record.Description,
			Active:        record.Active,
		})
	}

	// Classify created vs updated before the upsert; the statement's own
	// return values cannot tell the two apart.
	existing, err := s.products.ExistingSKUs(keys)
	if err != nil {
		return fmt.Errorf("check existing SKUs: %w", err)
	}

	if err := s.products.UpsertBatch(rows); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}

	// Progress tracks file position, so advance by raw rows, not unique keys
	job.ProcessedRecords += batch.RawCount
	job.Progress = calculateProgress(job.ProcessedRecords, job.TotalRecords)
	if err := s.jobs.Save(job); err != nil {
		return fmt.Errorf("persist batch progress: %w", err)
	}
	log.Infof("[Importer] Job %s: processed %d/%v (progress=%d%%)", job.ID, job.ProcessedRecords, job.TotalRecords, job.Progress)

	refreshed, err := s.products.FindBySKUNormalizedIn(keys)
	if err != nil {
		return fmt.Errorf("re-fetch batch products: %w", err)
	}
	for i := range refreshed {
		product := &refreshed[i]
		eventType := models.WebhookEventProductCreated
		if _, ok := existing[product.SKUNormalized]; ok {
			eventType = models.WebhookEventProductUpdated
		}
		s.notifier.Notify(ctx, eventType, productPayload(product))
	}

	totalRecords := 0
	if job.TotalRecords != nil {
		totalRecords = *job.TotalRecords
	}
	s.publish(ctx, job.ID, progress.Snapshot{
		Status:    string(models.ImportJobStatusProcessing),
		Progress:  intPtr(job.Progress),
		Processed: intPtr(job.ProcessedRecords),
		Total:     intPtr(totalRecords),
	})
	return nil
}

// failTerminal records a terminal failure: job row, failure event, final
// snapshot (left to expire via TTL), source cleanup.
func (s *Service) failTerminal(ctx context.Context, job *models.ImportJob, message string) Result {
	s.markFailed(ctx, job, message)
	s.removeSource(ctx, job)
	return TerminalFailure(message)
}

func (s *Service) markFailed(ctx context.Context, job *models.ImportJob, message string) {
	if err := s.jobs.MarkFailed(job, message); err != nil {
		log.Errorf("[Importer] Failed to mark job %s failed: %v", job.ID, err)
	}
	s.notifier.Notify(ctx, models.WebhookEventImportFailed, map[string]interface{}{
		"job_id":  job.ID,
		"message": message,
	})
	s.publish(ctx, job.ID, progress.Snapshot{
		Status:   string(models.ImportJobStatusFailed),
		Progress: intPtr(0),
		Message:  message,
	})
}

// removeSource deletes the staged upload and clears the job's file
// reference. Cleanup failures are logged, never escalated: the job already
// has its real outcome.
func (s *Service) removeSource(ctx context.Context, job *models.ImportJob) {
	if job.FilePath == nil || *job.FilePath == "" {
		return
	}
	if err := s.store.Remove(ctx, *job.FilePath); err != nil {
		log.Warnf("[Importer] Unable to remove uploaded file %s: %v", *job.FilePath, err)
	}
	job.FilePath = nil
	if err := s.jobs.Save(job); err != nil {
		log.Warnf("[Importer] Failed to clear file path on job %s: %v", job.ID, err)
	}
}

func (s *Service) publish(ctx context.Context, jobID string, snap progress.Snapshot) {
	if err := s.progress.Publish(ctx, jobID, snap); err != nil {
		log.Warnf("[Importer] Job %s: progress publish failed: %v", jobID, err)
	}
}

// calculateProgress is floor(processed*100/total) capped at 100; 0 when the
// total is unset or zero.
func calculateProgress(processed int, total *int) int {
	if total == nil || *total == 0 {
		return 0
	}
	percent := processed * 100 / *total
	if percent > 100 {
		return 100
	}
	return percent
}

func productPayload(p *models.Product) map[string]interface{} {
	payload := map[string]interface{}{
		"id":             p.ID,
		"name":           p.Name,
		"sku":            p.SKU,
		"sku_normalized": p.SKUNormalized,
		"description":    nil,
		"active":         p.Active,
		"created_at":     p.CreatedAt.Format(time.RFC3339),
		"updated_at":     p.UpdatedAt.Format(time.RFC3339),
	}
	if p.Description != nil {
		payload["description"] = *p.Description
	}
	return payload
}

func intPtr(v int) *int { return &v }

// QueueHandler adapts Run to the job queue: terminal failures become
// permanent errors (no dispatcher retry), retryable failures surface their
// cause so the queue re-runs the job from scratch.
func QueueHandler(svc *Service) jobqueue.Handler {
	return func(ctx context.Context, job *jobqueue.Job) error {
		payload, err := jobqueue.CSVImportPayloadFromMap(job.Payload)
		if err != nil {
			return jobqueue.Permanent(fmt.Errorf("invalid csv import payload: %w", err))
		}
		if payload.ImportJobID == "" {
			return jobqueue.Permanent(errors.New("csv import payload missing import_job_id"))
		}

		result := svc.Run(ctx, payload.ImportJobID)
		switch {
		case result.Succeeded():
			return nil
		case result.Retryable():
			return result.Cause()
		default:
			return jobqueue.Permanent(errors.New(result.Message()))
		}
	}
}
