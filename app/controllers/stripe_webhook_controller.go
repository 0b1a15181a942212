package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"

	"github.com/photovault/photovault/app/models"
	"github.com/photovault/photovault/internal/pkg/billing"
)

// WebhookProcessor records, dispatches and settles Stripe events. *billing.Service implements it.
type WebhookProcessor interface {
	RecordWebhookEvent(ctx context.Context, in billing.WebhookEventInput) (bool, *models.BillingWebhookEvent, error)
	Dispatch(ctx context.Context, event stripe.Event) (billing.Outcome, error)
	MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome billing.Outcome, processingErr error) error
}

// PayloadArchiver stores the raw body of an authenticated event.
type PayloadArchiver interface {
	Archive(ctx context.Context, eventID, eventType string, payload []byte, receivedAt time.Time) error
}

// WebhookCounter tallies deliveries by event type and result.
type WebhookCounter interface {
	AddWebhook(ctx context.Context, eventType, result string) error
}

// StripeWebhookController serves POST /api/webhooks/stripe.
type StripeWebhookController struct {
	processor WebhookProcessor
	secret    string
	archiver  PayloadArchiver
	counter   WebhookCounter
	timeout   time.Duration
}

// NewStripeWebhookController creates the controller. archiver may be nil.
func NewStripeWebhookController(processor WebhookProcessor, secret string, archiver PayloadArchiver, timeout time.Duration) *StripeWebhookController {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &StripeWebhookController{
		processor: processor,
		secret:    secret,
		archiver:  archiver,
		timeout:   timeout,
	}
}

// SetCounter enables delivery counters.
func (wc *StripeWebhookController) SetCounter(counter WebhookCounter) {
	wc.counter = counter
}

// HandleStripeWebhook authenticates, deduplicates and reconciles one event.
// Handler failures answer 500 so Stripe redelivers the event later.
func (wc *StripeWebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")

	event, err := billing.ConstructEvent(rawBody, signature, wc.secret)
	switch {
	case errors.Is(err, billing.ErrMissingSignature):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing signature"})
	case errors.Is(err, billing.ErrWebhookSecretMissing):
		log.Error("[StripeWebhook] STRIPE_WEBHOOK_SECRET is not configured")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook secret not configured"})
	case err != nil:
		log.Warnf("[StripeWebhook] Signature verification failed: %v", err)
		wc.count("", "rejected")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), wc.timeout)
	defer cancel()

	wc.archive(ctx, event, rawBody)

	created, stored, err := wc.processor.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[StripeWebhook] Failed to persist event %s: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook persist failed"})
	}
	if !created && !stored.NeedsProcessing() {
		log.Infof("[StripeWebhook] Duplicate event %s (%s) already processed", event.ID, event.Type)
		wc.count(string(event.Type), "duplicate")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	outcome, dispatchErr := wc.processor.Dispatch(ctx, event)
	if markErr := wc.processor.MarkWebhookProcessed(ctx, stored.ID, outcome, dispatchErr); markErr != nil {
		log.Warnf("[StripeWebhook] Failed to mark event %s processed: %v", event.ID, markErr)
	}
	if dispatchErr != nil {
		log.Errorf("[StripeWebhook] Error processing %s (%s): %v", event.ID, event.Type, dispatchErr)
		wc.count(string(event.Type), "failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": dispatchErr.Error()})
	}

	log.Infof("[StripeWebhook] %s (%s): %s", event.ID, event.Type, outcome)
	wc.count(string(event.Type), string(outcome.Result))
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}

func (wc *StripeWebhookController) archive(ctx context.Context, event stripe.Event, payload []byte) {
	if wc.archiver == nil {
		return
	}
	if err := wc.archiver.Archive(ctx, event.ID, string(event.Type), payload, time.Now()); err != nil {
		log.Warnf("[StripeWebhook] Archive of %s failed: %v", event.ID, err)
	}
}

// count runs on a fresh context so it is recorded even after the request deadline.
func (wc *StripeWebhookController) count(eventType, result string) {
	if wc.counter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := wc.counter.AddWebhook(ctx, eventType, result); err != nil {
		log.Debugf("[StripeWebhook] Counter update failed: %v", err)
	}
}
