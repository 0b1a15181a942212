package models

// Billing provider constants used across billing-related models.
const (
	BillingProviderStripe = "stripe"
)

// Subscription statuses mirrored from the payment processor.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
)

// User profile payment statuses.
const (
	PaymentStatusActive      = "active"
	PaymentStatusInactive    = "inactive"
	PaymentStatusGracePeriod = "grace_period"
)

// Gallery payment states.
const (
	GalleryPaymentStatusUnpaid = "unpaid"
	GalleryPaymentStatusPaid   = "paid"
)

// Ledger row states.
const (
	TransactionStatusCompleted = "completed"
)

// Stripe Connect states stored on photographers.
const (
	ConnectStatusNotStarted = "not_started"
	ConnectStatusPending    = "pending"
	ConnectStatusActive     = "active"
	ConnectStatusRestricted = "restricted"
	ConnectStatusDisabled   = "disabled"
)

// IsEntitlingSubscriptionStatus reports whether a subscription status grants access.
func IsEntitlingSubscriptionStatus(status string) bool {
	return status == SubscriptionStatusActive || status == SubscriptionStatusTrialing
}
