package repository

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// productRepository implements the ProductRepository interface
type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

// Create creates a new product in the database
func (r *productRepository) Create(product *models.Product) error {
	return r.db.Create(product).Error
}

// GetByID retrieves a product by its ID
func (r *productRepository) GetByID(id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// GetBySKUNormalized retrieves a product by its normalized SKU
func (r *productRepository) GetBySKUNormalized(skuNormalized string) (*models.Product, error) {
	var product models.Product
	if err := r.db.Where("sku_normalized = ?", skuNormalized).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List retrieves products matching the filter, newest first, plus the total
// count before pagination
func (r *productRepository) List(filter ProductFilter) ([]models.Product, int64, error) {
	query := r.db.Model(&models.Product{})
	if filter.SKU != "" {
		query = query.Where("sku_normalized = ?", models.NormalizeSKU(filter.SKU))
	}
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE ?", "%"+strings.ToLower(filter.Name)+"%")
	}
	if filter.Description != "" {
		query = query.Where("LOWER(description) LIKE ?", "%"+strings.ToLower(filter.Description)+"%")
	}
	if filter.Active != nil {
		query = query.Where("active = ?", *filter.Active)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.Size > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.Size).Limit(filter.Size)
	}

	var products []models.Product
	err := query.Order("created_at DESC").Find(&products).Error
	return products, total, err
}

// Update updates an existing product in the database
func (r *productRepository) Update(product *models.Product) error {
	return r.db.Save(product).Error
}

// Delete removes a product from the database
func (r *productRepository) Delete(id uint) error {
	return r.db.Delete(&models.Product{}, id).Error
}

// DeleteAll removes every product and returns the number of deleted rows
func (r *productRepository) DeleteAll() (int64, error) {
	result := r.db.Where("1 = 1").Delete(&models.Product{})
	return result.RowsAffected, result.Error
}

// ExistingSKUs returns the subset of the given normalized SKUs that already
// have a product row
func (r *productRepository) ExistingSKUs(skuNormalized []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(skuNormalized))
	if len(skuNormalized) == 0 {
		return existing, nil
	}
	var skus []string
	err := r.db.Model(&models.Product{}).
		Where("sku_normalized IN ?", skuNormalized).
		Pluck("sku_normalized", &skus).Error
	if err != nil {
		return nil, err
	}
	for _, sku := range skus {
		existing[sku] = struct{}{}
	}
	return existing, nil
}

// UpsertBatch writes a deduplicated batch in a single statement. A conflict on
// the normalized SKU updates the mutable columns; active is left untouched for
// existing rows.
func (r *productRepository) UpsertBatch(products []models.Product) error {
	if len(products) == 0 {
		return nil
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sku_normalized"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "sku", "description", "updated_at"}),
	}).Create(&products).Error
}

// FindBySKUNormalizedIn retrieves all products whose normalized SKU is in the
// given set
func (r *productRepository) FindBySKUNormalizedIn(skuNormalized []string) ([]models.Product, error) {
	if len(skuNormalized) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.Where("sku_normalized IN ?", skuNormalized).Find(&products).Error
	return products, err
}
