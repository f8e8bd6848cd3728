package apiv1

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CatalogFox/app/repository"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/webhook"
)

// WebhookNotifier is the dispatch capability the API uses for CRUD-triggered
// events and the webhook test probe. *webhook.Dispatcher satisfies it.
type WebhookNotifier interface {
	Notify(ctx context.Context, eventType string, payload map[string]interface{}, webhookIDs ...uint)
	Probe(ctx context.Context, url string) (webhook.ProbeResult, error)
}

// ImportEnqueuer hands an accepted upload to the background queue.
// *jobqueue.Queue satisfies it.
type ImportEnqueuer interface {
	EnqueueJob(jobType jobqueue.JobType, payload map[string]interface{}) (*jobqueue.Job, error)
}

// ProgressReader reads the ephemeral snapshot for the progress stream.
// *progress.Publisher satisfies it.
type ProgressReader interface {
	Read(ctx context.Context, jobID string) (progress.Snapshot, bool, error)
}

// APIServer implements the v1 JSON API
type APIServer struct {
	repos    *repository.Repositories
	notifier WebhookNotifier
	reader   ProgressReader
	enqueuer ImportEnqueuer
	store    uploadstore.Store
	validate *validator.Validate

	// pollInterval paces the progress stream; one event per second.
	pollInterval time.Duration
}

// NewAPIServer creates a new API server instance
func NewAPIServer(
	repos *repository.Repositories,
	notifier WebhookNotifier,
	reader ProgressReader,
	enqueuer ImportEnqueuer,
	store uploadstore.Store,
) *APIServer {
	return &APIServer{
		repos:        repos,
		notifier:     notifier,
		reader:       reader,
		enqueuer:     enqueuer,
		store:        store,
		validate:     validator.New(),
		pollInterval: time.Second,
	}
}

// RegisterHandlers installs the v1 routes on the given route group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	products := router.Group("/products")
	products.Get("/", s.ListProducts)
	products.Post("/", s.CreateProduct)
	products.Post("/upload", s.UploadProducts)
	// The bulk route must come before the id route or fiber would try to
	// parse "bulk" as a product id.
	products.Delete("/bulk", s.BulkDeleteProducts)
	products.Get("/:id", s.GetProduct)
	products.Put("/:id", s.UpdateProduct)
	products.Delete("/:id", s.DeleteProduct)

	webhooks := router.Group("/webhooks")
	webhooks.Get("/", s.ListWebhooks)
	webhooks.Post("/", s.CreateWebhook)
	webhooks.Put("/:id", s.UpdateWebhook)
	webhooks.Delete("/:id", s.DeleteWebhook)
	webhooks.Post("/:id/test", s.TestWebhook)

	router.Get("/progress/:job_id", s.StreamProgress)
}

func jsonError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"message": message,
	})
}
