package router

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	apiv1 "github.com/ManuelReschke/CatalogFox/internal/api/v1"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/config"
)

// ApiDeps carries everything the API routes need from main
type ApiDeps struct {
	Cache  config.CacheConfig
	Server *apiv1.APIServer
}

type ApiRouter struct {
	deps ApiDeps
}

func (h *ApiRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})

	// Rate limit state lives in Redis so limits hold across instances and
	// restarts. Database 2 keeps it apart from the cache and the job queue.
	storage := redis.New(redis.Config{
		Host:     h.deps.Cache.Host,
		Port:     atoiPort(h.deps.Cache.Port),
		Password: h.deps.Cache.Password,
		Database: 2,
		Reset:    false,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Storage: storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.deps.Server)
}

func NewApiRouter(deps ApiDeps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func atoiPort(port string) int {
	p, err := strconv.Atoi(port)
	if err != nil {
		return 6379
	}
	return p
}
