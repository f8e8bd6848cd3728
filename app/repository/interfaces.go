package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// ProductFilter narrows and paginates product listings. Zero values mean
// "not filtered"; Size <= 0 disables pagination.
type ProductFilter struct {
	SKU         string
	Name        string
	Description string
	Active      *bool
	Page        int
	Size        int
}

// ProductRepository defines the interface for product data access
type ProductRepository interface {
	Create(product *models.Product) error
	GetByID(id uint) (*models.Product, error)
	GetBySKUNormalized(skuNormalized string) (*models.Product, error)
	List(filter ProductFilter) ([]models.Product, int64, error)
	Update(product *models.Product) error
	Delete(id uint) error
	DeleteAll() (int64, error)
	ExistingSKUs(skuNormalized []string) (map[string]struct{}, error)
	UpsertBatch(products []models.Product) error
	FindBySKUNormalizedIn(skuNormalized []string) ([]models.Product, error)
}

// WebhookRepository defines the interface for webhook subscriber data access
type WebhookRepository interface {
	Create(webhook *models.Webhook) error
	GetByID(id uint) (*models.Webhook, error)
	List() ([]models.Webhook, error)
	Update(webhook *models.Webhook) error
	Delete(id uint) error
	FindEnabledByEventType(eventType string) ([]models.Webhook, error)
	FindEnabledByIDs(ids []uint) ([]models.Webhook, error)
}

// ImportJobRepository defines the interface for import job data access
type ImportJobRepository interface {
	Create(job *models.ImportJob) error
	GetByID(id string) (*models.ImportJob, error)
	ClaimForProcessing(id string) (*models.ImportJob, error)
	Save(job *models.ImportJob) error
	MarkCompleted(job *models.ImportJob) error
	MarkFailed(job *models.ImportJob, message string) error
}

// Repositories provides access to all repository implementations
type Repositories struct {
	Product   ProductRepository
	Webhook   WebhookRepository
	ImportJob ImportJobRepository
}

// NewRepositories creates a new instance of Repositories with all implementations
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Product:   NewProductRepository(db),
		Webhook:   NewWebhookRepository(db),
		ImportJob: NewImportJobRepository(db),
	}
}
