package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/CatalogFox/app/repository"
	apiv1 "github.com/ManuelReschke/CatalogFox/internal/api/v1"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/cache"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/config"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/database"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/env"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/importer"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/progress"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/router"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/uploadstore"
	"github.com/ManuelReschke/CatalogFox/internal/pkg/webhook"
)

func main() {
	env.SetupEnvFile()
	cfg := config.Load()

	db, err := database.New(cfg.Database)
	if err != nil {
		log.Fatalf("[App] Database setup failed: %v", err)
	}
	repos := repository.NewRepositories(db)

	cacheClient := cache.New(cfg.Cache)

	store, err := uploadstore.New(cfg.Upload)
	if err != nil {
		log.Fatalf("[App] Upload store setup failed: %v", err)
	}

	queue := jobqueue.NewQueue(cacheClient, cfg.Queue.Workers)
	publisher := progress.NewPublisher(cacheClient)
	dispatcher := webhook.NewDispatcher(repos.Webhook, queue)
	importSvc := importer.New(repos.ImportJob, repos.Product, publisher, dispatcher, store, cfg.Import.BatchSize)

	queue.RegisterHandler(jobqueue.JobTypeCSVImport, importer.QueueHandler(importSvc))
	queue.RegisterHandler(jobqueue.JobTypeWebhookDelivery, dispatcher.QueueHandler())
	queue.Start()

	app := newApplication(cfg, repos, dispatcher, publisher, queue, store)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		log.Info("[App] Shutting down")
		queue.Stop()
		if err := app.Shutdown(); err != nil {
			log.Errorf("[App] Shutdown failed: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)); err != nil {
		log.Fatal(err)
	}
}

func newApplication(
	cfg *config.Config,
	repos *repository.Repositories,
	dispatcher *webhook.Dispatcher,
	publisher *progress.Publisher,
	queue *jobqueue.Queue,
	store uploadstore.Store,
) *fiber.App {
	app := fiber.New(fiber.Config{
		// Leave room for the multipart framing around a full-size CSV.
		BodyLimit: uploadstore.MaxUploadBytes + 10<<20,
	})

	app.Use(recover.New(), logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
	}))
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	apiServer := apiv1.NewAPIServer(repos, dispatcher, publisher, queue, store)
	router.InstallRouter(app, router.ApiDeps{
		Cache:  cfg.Cache,
		Server: apiServer,
	})

	return app
}
