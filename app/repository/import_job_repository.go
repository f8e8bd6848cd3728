package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// importJobRepository implements the ImportJobRepository interface
type importJobRepository struct {
	db *gorm.DB
}

// NewImportJobRepository creates a new import job repository instance
func NewImportJobRepository(db *gorm.DB) ImportJobRepository {
	return &importJobRepository{db: db}
}

// Create creates a new import job in the database
func (r *importJobRepository) Create(job *models.ImportJob) error {
	return r.db.Create(job).Error
}

// GetByID retrieves an import job by its UUID
func (r *importJobRepository) GetByID(id string) (*models.ImportJob, error) {
	var job models.ImportJob
	if err := r.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimForProcessing locks the job row, moves it to processing and resets the
// counters from any previous attempt. The row lock makes a second worker
// holding a duplicate queue message block until the claim is committed, so
// only one worker runs a given import at a time.
func (r *importJobRepository) ClaimForProcessing(id string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&job, "id = ?", id).Error; err != nil {
			return err
		}
		job.Status = models.ImportJobStatusProcessing
		job.Progress = 0
		job.ProcessedRecords = 0
		job.ErrorMessage = nil
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// Save persists the current state of the job row
func (r *importJobRepository) Save(job *models.ImportJob) error {
	return r.db.Save(job).Error
}

// MarkCompleted moves the job to its successful terminal state
func (r *importJobRepository) MarkCompleted(job *models.ImportJob) error {
	job.Status = models.ImportJobStatusCompleted
	job.Progress = 100
	return r.db.Save(job).Error
}

// MarkFailed moves the job to its failed terminal state with the given message
func (r *importJobRepository) MarkFailed(job *models.ImportJob, message string) error {
	job.Status = models.ImportJobStatusFailed
	job.Progress = 0
	job.ErrorMessage = &message
	return r.db.Save(job).Error
}
