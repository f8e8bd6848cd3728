package jobqueue

import (
	"encoding/json"
	"errors"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeCSVImport       JobType = "csv_import"
	JobTypeWebhookDelivery JobType = "webhook_delivery"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// TypeSettings holds the retry policy for one job type
type TypeSettings struct {
	MaxRetries int
	Backoff    time.Duration
}

// settingsFor returns the retry policy for the given job type. CSV imports
// back off in minutes because a retry re-runs the whole file from scratch;
// webhook deliveries back off in seconds to keep subscribers close to live.
func settingsFor(jobType JobType) TypeSettings {
	switch jobType {
	case JobTypeCSVImport:
		return TypeSettings{MaxRetries: 3, Backoff: time.Minute}
	case JobTypeWebhookDelivery:
		return TypeSettings{MaxRetries: 3, Backoff: 5 * time.Second}
	default:
		return TypeSettings{MaxRetries: DefaultMaxRetries, Backoff: time.Minute}
	}
}

// PermanentError marks a job failure that must not be retried. The queue
// records the job as failed and drops it regardless of the retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps an error so the queue treats it as terminal.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err carries a PermanentError in its chain.
func IsPermanent(err error) bool {
	var perm *PermanentError
	return errors.As(err, &perm)
}

// CSVImportPayload contains the payload for CSV import jobs
type CSVImportPayload struct {
	ImportJobID string `json:"import_job_id"`
}

// ToMap converts the payload to a map for storage
func (p CSVImportPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"import_job_id": p.ImportJobID,
	}
}

// CSVImportPayloadFromMap creates a payload from a map
func CSVImportPayloadFromMap(data map[string]interface{}) (*CSVImportPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload CSVImportPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// WebhookDeliveryPayload contains the payload for webhook delivery jobs
type WebhookDeliveryPayload struct {
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	WebhookID uint                   `json:"webhook_id"`
	URL       string                 `json:"url"`
}

// ToMap converts the payload to a map for storage
func (p WebhookDeliveryPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"event_type": p.EventType,
		"payload":    p.Payload,
		"webhook_id": p.WebhookID,
		"url":        p.URL,
	}
}

// WebhookDeliveryPayloadFromMap creates a payload from a map
func WebhookDeliveryPayloadFromMap(data map[string]interface{}) (*WebhookDeliveryPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload WebhookDeliveryPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
