package models

import (
	"time"
)

// Webhook event types
const (
	WebhookEventProductCreated      = "product.created"
	WebhookEventProductUpdated      = "product.updated"
	WebhookEventProductDeleted      = "product.deleted"
	WebhookEventImportCompleted     = "import.completed"
	WebhookEventImportFailed        = "import.failed"
	WebhookEventBulkDeleteCompleted = "bulk_delete.completed"
	WebhookEventTest                = "webhook.test"
)

var webhookEventTypes = map[string]struct{}{
	WebhookEventProductCreated:      {},
	WebhookEventProductUpdated:      {},
	WebhookEventProductDeleted:      {},
	WebhookEventImportCompleted:     {},
	WebhookEventImportFailed:        {},
	WebhookEventBulkDeleteCompleted: {},
	WebhookEventTest:                {},
}

// IsWebhookEventType reports whether eventType is one of the known event types
func IsWebhookEventType(eventType string) bool {
	_, ok := webhookEventTypes[eventType]
	return ok
}

// Webhook is a subscriber endpoint bound to exactly one event type. Disabled
// webhooks stay configured but are skipped by the dispatcher.
type Webhook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	URL       string    `gorm:"type:varchar(512);not null" json:"url"`
	EventType string    `gorm:"type:varchar(50);not null;index" json:"event_type"`
	Enabled   bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
