package billing

import (
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
)

// NormalizedSubscription is the provider-agnostic shape used by the
// handlers when mirroring processor subscription state into local tables.
type NormalizedSubscription struct {
	StripeSubscriptionID string
	StripeCustomerID     string
	Status               string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	TrialEnd             *time.Time
	Kind                 SubscriptionKind
}

// NormalizeStripeSubscription converts a processor subscription.
func NormalizeStripeSubscription(sub *stripe.Subscription) NormalizedSubscription {
	n := NormalizedSubscription{
		StripeSubscriptionID: strings.TrimSpace(sub.ID),
		Status:               mirrorSubscriptionStatus(sub.Status),
		CurrentPeriodStart:   unixTime(sub.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(sub.CurrentPeriodEnd),
		TrialEnd:             unixTime(sub.TrialEnd),
		Kind:                 KindFromMetadata(sub.Metadata),
	}
	if sub.Customer != nil {
		n.StripeCustomerID = sub.Customer.ID
	}
	return n
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// PaymentStatusUpdate changes a user profile's billing fields. Nil times are left untouched.
type PaymentStatusUpdate struct {
	Status              string
	LastPaymentAt       *time.Time
	SubscriptionStartAt *time.Time
	SubscriptionEndAt   *time.Time
}

// PlatformSubscriptionUpdate changes a photographer's platform subscription fields.
// Empty strings and nil times are left untouched.
type PlatformSubscriptionUpdate struct {
	SubscriptionID string
	CustomerID     string
	Status         string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
	TrialEnd       *time.Time
}

// ConnectStatusUpdate changes a photographer's payout eligibility.
type ConnectStatusUpdate struct {
	Status              string
	CanReceivePayouts   bool
	BankAccountVerified bool
}

// TransferRequest asks the gateway to move funds to a connected account.
type TransferRequest struct {
	AmountCents          int64
	Currency             string
	DestinationAccountID string
	TransferGroup        string
	IdempotencyKey       string
	Metadata             map[string]string
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
