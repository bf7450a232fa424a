package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"reactormap/internal/config"
	"reactormap/internal/handlers"
	"reactormap/internal/logging"
)

// Deps carries everything the app needs. Stats and Syncer may be nil when the
// reactor store or the pipeline are not configured.
type Deps struct {
	Config config.Config
	Redis  *redis.Client
	Stats  handlers.StatsSource
	Syncer handlers.Syncer
}

// SetupApp creates and configures a new Fiber app instance
func SetupApp(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               deps.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, deps.Config)
	RegisterRoutes(app, deps)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, deps Deps) {
	// One shared service instance so every card route shares the Chrome pool.
	svc := handlers.NewCardService(deps.Config, deps.Redis, deps.Stats)

	// Well-known asset paths for link-preview crawlers.
	app.Get("/social-card.png", svc.HandleCard)
	app.Get("/social-card@0.5.png", svc.HandleHalfCard)
	app.Get("/qr.png", handlers.HandleQR)

	v1 := app.Group("/v1")
	v1.Get("/card.png", svc.HandleLiveCard)
	v1.Get("/reactors/stats", svc.HandleReactorStats)
	v1.Get("/chrome/stats", svc.HandleChromeStats)

	trigger := &handlers.SyncTrigger{Syncer: deps.Syncer}
	v1.Post("/sync", handlers.RequireToken(), trigger.Handle)

	v1.Get("/monitor", monitor.New())
}
