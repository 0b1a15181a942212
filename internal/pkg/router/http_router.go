package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
)

type HttpRouter struct {
	deps Dependencies
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	if h.deps.Health != nil {
		app.Get("/health", h.deps.Health.HandleHealth)
	}

	// fiber metrics, only when credentials are configured
	if h.deps.MetricsUser == "" || h.deps.MetricsPassword == "" {
		log.Warn("[Router] METRICS_USER/METRICS_PASSWORD not set, /metrics disabled")
		return
	}
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MetricsUser: h.deps.MetricsPassword,
		},
	}), monitor.New(monitor.Config{Title: "PhotoVault Metrics"}))
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}
