package apiv1

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
	"github.com/ManuelReschke/CatalogFox/app/repository"
)

const (
	defaultPageSize = 25
	maxPageSize     = 100
)

// ProductCreateRequest is the body for POST /products
type ProductCreateRequest struct {
	Name        string  `json:"name" validate:"required"`
	SKU         string  `json:"sku" validate:"required"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// ProductUpdateRequest is the body for PUT /products/:id; absent fields stay
// untouched
type ProductUpdateRequest struct {
	Name        *string `json:"name"`
	SKU         *string `json:"sku"`
	Description *string `json:"description"`
	Active      *bool   `json:"active"`
}

// ProductListResponse wraps a product page with its pagination envelope
type ProductListResponse struct {
	Items      []models.Product `json:"items"`
	Pagination Pagination       `json:"pagination"`
}

// Pagination describes one page of a listing
type Pagination struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Size  int   `json:"size"`
}

// ListProducts handles GET /products with filters and pagination
func (s *APIServer) ListProducts(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	size := c.QueryInt("size", defaultPageSize)
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	filter := repository.ProductFilter{
		SKU:         c.Query("sku"),
		Name:        c.Query("name"),
		Description: c.Query("description"),
		Page:        page,
		Size:        size,
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return jsonError(c, fiber.StatusBadRequest, "Invalid value for 'active'")
		}
		filter.Active = &active
	}

	items, total, err := s.repos.Product.List(filter)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to list products")
	}
	if items == nil {
		items = []models.Product{}
	}

	return c.JSON(ProductListResponse{
		Items:      items,
		Pagination: Pagination{Total: total, Page: page, Size: size},
	})
}

// GetProduct handles GET /products/:id
func (s *APIServer) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid product id")
	}

	product, err := s.repos.Product.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Product not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load product")
	}
	return c.JSON(product)
}

// CreateProduct handles POST /products. The endpoint upserts by normalized
// SKU: posting an existing SKU overwrites that product instead of failing,
// and the emitted event type reflects which of the two happened.
func (s *APIServer) CreateProduct(c *fiber.Ctx) error {
	var req ProductCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Fields 'name' and 'sku' are required")
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	normalized := models.NormalizeSKU(req.SKU)
	existing, err := s.repos.Product.GetBySKUNormalized(normalized)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to create product")
	}

	var (
		product   *models.Product
		eventType string
	)
	if existing != nil {
		existing.Name = req.Name
		existing.SKU = req.SKU
		existing.Description = req.Description
		existing.Active = active
		if err := s.repos.Product.Update(existing); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Failed to update product")
		}
		product = existing
		eventType = models.WebhookEventProductUpdated
	} else {
		product = &models.Product{
			Name:        req.Name,
			SKU:         req.SKU,
			Description: req.Description,
			Active:      active,
		}
		if err := s.repos.Product.Create(product); err != nil {
			return jsonError(c, fiber.StatusInternalServerError, "Failed to create product")
		}
		eventType = models.WebhookEventProductCreated
	}

	s.notifier.Notify(c.Context(), eventType, productEventPayload(product))
	return c.Status(fiber.StatusCreated).JSON(product)
}

// UpdateProduct handles PUT /products/:id with partial semantics
func (s *APIServer) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid product id")
	}

	var req ProductUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	product, err := s.repos.Product.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Product not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load product")
	}

	if req.SKU != nil {
		if strings.TrimSpace(*req.SKU) == "" {
			return jsonError(c, fiber.StatusBadRequest, "Field 'sku' must not be empty")
		}
		conflict, err := s.repos.Product.GetBySKUNormalized(models.NormalizeSKU(*req.SKU))
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusInternalServerError, "Failed to update product")
		}
		if conflict != nil && conflict.ID != product.ID {
			return jsonError(c, fiber.StatusConflict, "SKU already exists")
		}
		product.SKU = *req.SKU
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return jsonError(c, fiber.StatusBadRequest, "Field 'name' must not be empty")
		}
		product.Name = *req.Name
	}
	if req.Description != nil {
		product.Description = req.Description
	}
	if req.Active != nil {
		product.Active = *req.Active
	}

	if err := s.repos.Product.Update(product); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to update product")
	}

	s.notifier.Notify(c.Context(), models.WebhookEventProductUpdated, productEventPayload(product))
	return c.JSON(product)
}

// DeleteProduct handles DELETE /products/:id
func (s *APIServer) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid product id")
	}

	product, err := s.repos.Product.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Product not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load product")
	}

	payload := productEventPayload(product)
	if err := s.repos.Product.Delete(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete product")
	}

	s.notifier.Notify(c.Context(), models.WebhookEventProductDeleted, payload)
	return c.SendStatus(fiber.StatusNoContent)
}

// BulkDeleteProducts handles DELETE /products/bulk. An empty catalog yields
// deleted=0 and, per policy, no event.
func (s *APIServer) BulkDeleteProducts(c *fiber.Ctx) error {
	deleted, err := s.repos.Product.DeleteAll()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete products")
	}

	if deleted > 0 {
		s.notifier.Notify(c.Context(), models.WebhookEventBulkDeleteCompleted, map[string]interface{}{
			"deleted": deleted,
		})
	}
	return c.JSON(fiber.Map{"deleted": deleted})
}

func parseID(c *fiber.Ctx) (uint, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

func productEventPayload(p *models.Product) map[string]interface{} {
	payload := map[string]interface{}{
		"id":             p.ID,
		"name":           p.Name,
		"sku":            p.SKU,
		"sku_normalized": p.SKUNormalized,
		"description":    nil,
		"active":         p.Active,
		"created_at":     p.CreatedAt,
		"updated_at":     p.UpdatedAt,
	}
	if p.Description != nil {
		payload["description"] = *p.Description
	}
	return payload
}
