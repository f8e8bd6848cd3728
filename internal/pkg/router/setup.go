package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs one group of routes on the fiber app
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter wires all route groups into the app
func InstallRouter(app *fiber.App, deps ApiDeps) {
	setup(app, NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
