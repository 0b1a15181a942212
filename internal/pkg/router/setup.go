package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/photovault/photovault/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the controllers the routes are bound to.
type Dependencies struct {
	Webhook         *controllers.StripeWebhookController
	Health          *controllers.HealthController
	MetricsUser     string
	MetricsPassword string
	// WebhookRateLimit is the max webhook requests per minute per IP. Zero uses the default.
	WebhookRateLimit int
	// LimiterStorage shares rate limit state between instances. Nil keeps it in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
