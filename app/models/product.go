package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Product is a single catalog entry. Import and upsert identity is the
// normalized SKU, never the raw SKU or the numeric ID.
type Product struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null" json:"name"`
	SKU           string    `gorm:"type:varchar(64);not null" json:"sku"`
	SKUNormalized string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"sku_normalized"`
	Description   *string   `gorm:"type:text" json:"description"`
	Active        bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NormalizeSKU returns the canonical identity form of a SKU: trimmed and lowercased.
func NormalizeSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// BeforeSave trims the raw SKU and derives the normalized column from it, so
// the two can never drift apart no matter which code path writes the row.
func (p *Product) BeforeSave(tx *gorm.DB) error {
	p.SKU = strings.TrimSpace(p.SKU)
	p.SKUNormalized = NormalizeSKU(p.SKU)
	return nil
}
