package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/photovault/photovault/app/models"
	"github.com/stripe/stripe-go/v76"
)

// Publisher emits billing domain events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
}

// Notifier tells people about billing state that needs their action.
type Notifier interface {
	NotifyPayoutPending(ctx context.Context, to string, galleryID string, amountCents int64) error
}

// PayoutScheduler queues a later payout attempt for a ledger row.
type PayoutScheduler interface {
	SchedulePayoutRetry(ctx context.Context, transactionID string) error
}

// Routing keys for published billing events.
const (
	RoutingGalleryPaymentSucceeded   = "gallery.payment.succeeded"
	RoutingSubscriptionStatusChanged = "subscription.status.changed"
	RoutingPayoutTransferFailed      = "payout.transfer.failed"
)

// Options holds the optional collaborators of the billing service.
type Options struct {
	Publisher      Publisher
	Notifier       Notifier
	Scheduler      PayoutScheduler
	PayoutCurrency string
	Now            func() time.Time
}

// Service reconciles processor events into local billing state.
type Service struct {
	repo      Repository
	gateway   Gateway
	publisher Publisher
	notifier  Notifier
	scheduler PayoutScheduler
	currency  string
	nowFn     func() time.Time
}

// NewService creates a billing service from an injected repository and gateway.
func NewService(repo Repository, gateway Gateway, opts Options) *Service {
	s := &Service{
		repo:      repo,
		gateway:   gateway,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		scheduler: opts.Scheduler,
		currency:  strings.ToLower(strings.TrimSpace(opts.PayoutCurrency)),
		nowFn:     opts.Now,
	}
	if s.currency == "" {
		s.currency = string(stripe.CurrencyUSD)
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	return s
}

// SetPayoutScheduler wires the retry queue after construction; the queue
// itself needs the service to run retries.
func (s *Service) SetPayoutScheduler(scheduler PayoutScheduler) {
	s.scheduler = scheduler
}

// Dispatch routes an authenticated event to its handler. Unrecognized types
// are skipped without side effects.
func (s *Service) Dispatch(ctx context.Context, event stripe.Event) (Outcome, error) {
	switch string(event.Type) {
	case EventCheckoutSessionCompleted:
		return s.handleCheckoutCompleted(ctx, event)
	case EventCustomerSubscriptionCreate, EventCustomerSubscriptionUpdate:
		return s.handleSubscriptionChanged(ctx, event)
	case EventCustomerSubscriptionDelete:
		return s.handleSubscriptionDeleted(ctx, event)
	case EventInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, event)
	case EventPaymentIntentSucceeded:
		return s.handlePaymentIntentSucceeded(ctx, event)
	case EventAccountUpdated:
		return s.handleAccountUpdated(ctx, event)
	default:
		log.Infof("[Billing] Unhandled event type %s (%s)", event.Type, event.ID)
		return skipped("unhandled event type " + string(event.Type)), nil
	}
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome Outcome, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg, truncate(outcome.String(), 255))
}

func (s *Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, routingKey, body); err != nil {
		log.Warnf("[Billing] Failed to publish %s: %v", routingKey, err)
	}
}

func (s *Service) now() time.Time {
	return s.nowFn().UTC()
}

func truncate(v string, max int) string {
	if len(v) <= max {
		return v
	}
	return v[:max]
}
