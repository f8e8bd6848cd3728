package repository

import (
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// webhookRepository implements the WebhookRepository interface
type webhookRepository struct {
	db *gorm.DB
}

// NewWebhookRepository creates a new webhook repository instance
func NewWebhookRepository(db *gorm.DB) WebhookRepository {
	return &webhookRepository{db: db}
}

// Create creates a new webhook in the database
func (r *webhookRepository) Create(webhook *models.Webhook) error {
	return r.db.Create(webhook).Error
}

// GetByID retrieves a webhook by its ID
func (r *webhookRepository) GetByID(id uint) (*models.Webhook, error) {
	var webhook models.Webhook
	if err := r.db.First(&webhook, id).Error; err != nil {
		return nil, err
	}
	return &webhook, nil
}

// List retrieves all webhooks, oldest first
func (r *webhookRepository) List() ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := r.db.Order("created_at ASC").Find(&webhooks).Error
	return webhooks, err
}

// Update updates an existing webhook in the database
func (r *webhookRepository) Update(webhook *models.Webhook) error {
	return r.db.Save(webhook).Error
}

// Delete removes a webhook from the database
func (r *webhookRepository) Delete(id uint) error {
	return r.db.Delete(&models.Webhook{}, id).Error
}

// FindEnabledByEventType retrieves all enabled webhooks subscribed to the event type
func (r *webhookRepository) FindEnabledByEventType(eventType string) ([]models.Webhook, error) {
	var webhooks []models.Webhook
	err := r.db.Where("event_type = ? AND enabled = ?", eventType, true).Find(&webhooks).Error
	return webhooks, err
}

// FindEnabledByIDs retrieves the enabled subset of the given webhook IDs
func (r *webhookRepository) FindEnabledByIDs(ids []uint) ([]models.Webhook, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var webhooks []models.Webhook
	err := r.db.Where("id IN ? AND enabled = ?", ids, true).Find(&webhooks).Error
	return webhooks, err
}
