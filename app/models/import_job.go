package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImportJobStatus is the lifecycle state of a CSV import. Transitions only
// move forward: pending -> processing -> completed or failed.
type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusCompleted  ImportJobStatus = "completed"
	ImportJobStatusFailed     ImportJobStatus = "failed"
)

// IsTerminal reports whether the status allows no further transition.
func (s ImportJobStatus) IsTerminal() bool {
	return s == ImportJobStatusCompleted || s == ImportJobStatusFailed
}

// ImportJob tracks one CSV catalog import from upload to its terminal state.
// Progress and processed counters are durable checkpoints; the fine-grained
// live view lives in Redis and expires on its own.
type ImportJob struct {
	ID               string          `gorm:"type:char(36);primaryKey" json:"id"`
	Status           ImportJobStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Progress         int             `gorm:"not null;default:0" json:"progress"`
	TotalRecords     *int            `json:"total_records"`
	ProcessedRecords int             `gorm:"not null;default:0" json:"processed_records"`
	FilePath         *string         `gorm:"type:varchar(1024)" json:"file_path"`
	OriginalFilename *string         `gorm:"type:varchar(255)" json:"original_filename"`
	ContentType      *string         `gorm:"type:varchar(128)" json:"content_type"`
	ErrorMessage     *string         `gorm:"type:text" json:"error_message"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// BeforeCreate assigns the public UUID and the initial status.
func (j *ImportJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	if j.Status == "" {
		j.Status = ImportJobStatusPending
	}
	return nil
}
