package billing

import (
	"strings"

	"github.com/photovault/photovault/app/models"
	"github.com/stripe/stripe-go/v76"
)

// mirrorSubscriptionStatus maps a processor status onto the local enumeration.
// Unknown values fall back to past_due so access is never granted by accident.
func mirrorSubscriptionStatus(status stripe.SubscriptionStatus) string {
	switch strings.ToLower(strings.TrimSpace(string(status))) {
	case "active":
		return models.SubscriptionStatusActive
	case "trialing":
		return models.SubscriptionStatusTrialing
	case "past_due", "unpaid", "incomplete", "paused":
		return models.SubscriptionStatusPastDue
	case "canceled", "cancelled", "incomplete_expired":
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusPastDue
	}
}

// paidStatus is the status to store after a successful invoice: trialing stays
// trialing, everything else becomes active.
func paidStatus(mirrored string) string {
	if mirrored == models.SubscriptionStatusTrialing {
		return models.SubscriptionStatusTrialing
	}
	return models.SubscriptionStatusActive
}

// connectStatusByKey maps the derived onboarding key to a stored connect status.
// TODO: key this on the account's requirements.disabled_reason so the
// restricted and disabled entries become reachable.
var connectStatusByKey = map[string]string{
	"enabled":    models.ConnectStatusActive,
	"pending":    models.ConnectStatusPending,
	"disabled":   models.ConnectStatusDisabled,
	"restricted": models.ConnectStatusRestricted,
}

func connectStatusKey(detailsSubmitted bool) string {
	if detailsSubmitted {
		return "enabled"
	}
	return "pending"
}

func connectStatus(detailsSubmitted bool) string {
	if s, ok := connectStatusByKey[connectStatusKey(detailsSubmitted)]; ok {
		return s
	}
	return models.ConnectStatusPending
}
