package apiv1

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CatalogFox/app/models"
)

// WebhookCreateRequest is the body for POST /webhooks
type WebhookCreateRequest struct {
	URL       string `json:"url" validate:"required,url"`
	EventType string `json:"event_type" validate:"required"`
	Enabled   *bool  `json:"enabled"`
}

// WebhookUpdateRequest is the body for PUT /webhooks/:id; absent fields stay
// untouched
type WebhookUpdateRequest struct {
	URL       *string `json:"url"`
	EventType *string `json:"event_type"`
	Enabled   *bool   `json:"enabled"`
}

// ListWebhooks handles GET /webhooks
func (s *APIServer) ListWebhooks(c *fiber.Ctx) error {
	webhooks, err := s.repos.Webhook.List()
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to list webhooks")
	}
	if webhooks == nil {
		webhooks = []models.Webhook{}
	}
	return c.JSON(webhooks)
}

// CreateWebhook handles POST /webhooks
func (s *APIServer) CreateWebhook(c *fiber.Ctx) error {
	var req WebhookCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if err := s.validate.Struct(req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Fields 'url' and 'event_type' are required")
	}
	if !models.IsWebhookEventType(req.EventType) {
		return jsonError(c, fiber.StatusBadRequest, fmt.Sprintf("Unknown event type: %s", req.EventType))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	webhook := &models.Webhook{
		URL:       req.URL,
		EventType: req.EventType,
		Enabled:   enabled,
	}
	if err := s.repos.Webhook.Create(webhook); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to create webhook")
	}
	return c.Status(fiber.StatusCreated).JSON(webhook)
}

// UpdateWebhook handles PUT /webhooks/:id with partial semantics
func (s *APIServer) UpdateWebhook(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid webhook id")
	}

	var req WebhookUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid request body")
	}

	webhook, err := s.repos.Webhook.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Webhook not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load webhook")
	}

	if req.URL != nil {
		if strings.TrimSpace(*req.URL) == "" {
			return jsonError(c, fiber.StatusBadRequest, "Field 'url' must not be empty")
		}
		webhook.URL = *req.URL
	}
	if req.EventType != nil {
		if !models.IsWebhookEventType(*req.EventType) {
			return jsonError(c, fiber.StatusBadRequest, fmt.Sprintf("Unknown event type: %s", *req.EventType))
		}
		webhook.EventType = *req.EventType
	}
	if req.Enabled != nil {
		webhook.Enabled = *req.Enabled
	}

	if err := s.repos.Webhook.Update(webhook); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to update webhook")
	}
	return c.JSON(webhook)
}

// DeleteWebhook handles DELETE /webhooks/:id
func (s *APIServer) DeleteWebhook(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid webhook id")
	}

	if _, err := s.repos.Webhook.GetByID(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Webhook not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load webhook")
	}
	if err := s.repos.Webhook.Delete(id); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "Failed to delete webhook")
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// TestWebhook handles POST /webhooks/:id/test. It fires a synchronous probe
// request at the subscriber and reports what came back, without involving the
// job queue.
func (s *APIServer) TestWebhook(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "Invalid webhook id")
	}

	webhook, err := s.repos.Webhook.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "Webhook not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "Failed to load webhook")
	}

	result, err := s.notifier.Probe(c.Context(), webhook.URL)
	if err != nil {
		return jsonError(c, fiber.StatusBadGateway, fmt.Sprintf("Request failed: %s", err))
	}
	return c.JSON(result)
}
