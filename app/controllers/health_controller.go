package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/photovault/photovault/internal/pkg/jobqueue"
	"github.com/photovault/photovault/internal/pkg/metrics/counter"
)

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

// QueueStats reports job queue sizes.
type QueueStats interface {
	GetStats(ctx context.Context) (jobqueue.Stats, error)
}

// WebhookCounts reports cumulative webhook delivery counters.
type WebhookCounts interface {
	Webhooks(ctx context.Context) ([]counter.WebhookCount, error)
}

// HealthController serves GET /health.
type HealthController struct {
	checks   map[string]HealthCheck
	queue    QueueStats
	webhooks WebhookCounts
}

func NewHealthController(checks map[string]HealthCheck, queue QueueStats) *HealthController {
	return &HealthController{checks: checks, queue: queue}
}

// SetWebhookCounts adds delivery counters to the health report.
func (hc *HealthController) SetWebhookCounts(webhooks WebhookCounts) {
	hc.webhooks = webhooks
}

// HandleHealth returns 200 when every check passes, 503 otherwise.
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	components := fiber.Map{}
	for name, check := range hc.checks {
		if err := check(ctx); err != nil {
			components[name] = fiber.Map{"ok": false, "error": err.Error()}
			status = fiber.StatusServiceUnavailable
			continue
		}
		components[name] = fiber.Map{"ok": true}
	}

	body := fiber.Map{"status": "ok", "components": components}
	if status != fiber.StatusOK {
		body["status"] = "degraded"
	}
	if hc.queue != nil {
		if stats, err := hc.queue.GetStats(ctx); err == nil {
			body["jobqueue"] = stats
		}
	}
	if hc.webhooks != nil {
		if counts, err := hc.webhooks.Webhooks(ctx); err == nil {
			body["webhooks"] = counts
		}
	}
	return c.Status(status).JSON(body)
}
