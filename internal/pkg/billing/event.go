package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Stripe event types handled by the reconciliation processor.
const (
	EventCheckoutSessionCompleted   = "checkout.session.completed"
	EventCustomerSubscriptionCreate = "customer.subscription.created"
	EventCustomerSubscriptionUpdate = "customer.subscription.updated"
	EventCustomerSubscriptionDelete = "customer.subscription.deleted"
	EventInvoicePaid                = "invoice.paid"
	EventInvoicePaymentFailed       = "invoice.payment_failed"
	EventPaymentIntentSucceeded     = "payment_intent.succeeded"
	EventAccountUpdated             = "account.updated"
)

var (
	ErrMissingSignature     = errors.New("missing signature")
	ErrWebhookSecretMissing = errors.New("webhook secret not configured")
	ErrInvalidSignature     = errors.New("webhook signature verification failed")
	ErrMalformedEvent       = errors.New("malformed event payload")
)

// ConstructEvent authenticates a raw webhook body against the Stripe-Signature
// header and decodes it. API version mismatches are tolerated because only the
// fields read by the handlers matter.
func ConstructEvent(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return stripe.Event{}, ErrMissingSignature
	}
	if strings.TrimSpace(secret) == "" {
		return stripe.Event{}, ErrWebhookSecretMissing
	}

	event, err := webhook.ConstructEventWithOptions(payload, sig, strings.TrimSpace(secret), webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.ID == "" || event.Type == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing id or type", ErrInvalidSignature)
	}
	return event, nil
}

func decodeObject(event stripe.Event, dst interface{}) error {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return fmt.Errorf("%w: %s has no data object", ErrMalformedEvent, event.ID)
	}
	if err := json.Unmarshal(event.Data.Raw, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, event.ID, err)
	}
	return nil
}

func decodeCheckoutSession(event stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := decodeObject(event, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func decodeSubscription(event stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := decodeObject(event, &sub); err != nil {
		return nil, err
	}
	if sub.ID == "" {
		return nil, fmt.Errorf("%w: %s subscription without id", ErrMalformedEvent, event.ID)
	}
	return &sub, nil
}

func decodeInvoice(event stripe.Event) (*stripe.Invoice, error) {
	var inv stripe.Invoice
	if err := decodeObject(event, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func decodePaymentIntent(event stripe.Event) (*stripe.PaymentIntent, error) {
	var pi stripe.PaymentIntent
	if err := decodeObject(event, &pi); err != nil {
		return nil, err
	}
	if pi.ID == "" {
		return nil, fmt.Errorf("%w: %s payment intent without id", ErrMalformedEvent, event.ID)
	}
	return &pi, nil
}

func decodeAccount(event stripe.Event) (*stripe.Account, error) {
	var acct stripe.Account
	if err := decodeObject(event, &acct); err != nil {
		return nil, err
	}
	if acct.ID == "" {
		return nil, fmt.Errorf("%w: %s account without id", ErrMalformedEvent, event.ID)
	}
	return &acct, nil
}
