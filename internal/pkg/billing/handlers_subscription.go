package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/photovault/photovault/app/models"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

// SubscriptionStatusChanged is published whenever a mirrored status is written.
type SubscriptionStatusChanged struct {
	StripeSubscriptionID string `json:"stripe_subscription_id"`
	Kind                 string `json:"kind"`
	OwnerID              string `json:"owner_id"`
	Status               string `json:"status"`
	PaymentStatus        string `json:"payment_status,omitempty"`
	EventID              string `json:"event_id"`
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	session, err := decodeCheckoutSession(event)
	if err != nil {
		return Outcome{}, err
	}

	client, ok := KindFromMetadata(session.Metadata).(ClientKind)
	if !ok {
		return skipped("platform checkout is reconciled by subscription events"), nil
	}
	if !client.CanCreate() {
		log.Warnf("[Billing] Checkout %s missing client_id/gallery_id metadata", session.ID)
		return skipped("checkout session missing client_id or gallery_id metadata"), nil
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return skipped("checkout session has no subscription"), nil
	}

	sub, err := s.gateway.GetSubscription(ctx, session.Subscription.ID)
	if err != nil {
		return Outcome{}, err
	}
	n := NormalizeStripeSubscription(sub)
	customerID := n.StripeCustomerID
	if session.Customer != nil && session.Customer.ID != "" {
		customerID = session.Customer.ID
	}
	n.StripeCustomerID = customerID

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		row, err := repo.GetSubscriptionByStripeID(ctx, n.StripeSubscriptionID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			row = newClientSubscriptionRow(client)
		}
		applySnapshot(row, n, n.Status)
		if err := repo.UpsertSubscription(ctx, row); err != nil {
			return fmt.Errorf("upsert subscription %s: %w", n.StripeSubscriptionID, err)
		}
		if err := repo.UpdatePaymentStatus(ctx, client.ClientID, PaymentStatusUpdate{
			Status:              models.PaymentStatusActive,
			SubscriptionStartAt: n.CurrentPeriodStart,
			SubscriptionEndAt:   n.CurrentPeriodEnd,
		}); err != nil {
			return fmt.Errorf("activate client %s: %w", client.ClientID, err)
		}
		return attachCustomerID(ctx, repo, client.ClientID, customerID)
	})
	if err != nil {
		return Outcome{}, err
	}

	s.publish(ctx, RoutingSubscriptionStatusChanged, SubscriptionStatusChanged{
		StripeSubscriptionID: n.StripeSubscriptionID,
		Kind:                 "client",
		OwnerID:              client.ClientID,
		Status:               n.Status,
		PaymentStatus:        models.PaymentStatusActive,
		EventID:              event.ID,
	})
	return applied("client subscription " + n.StripeSubscriptionID + " created from checkout"), nil
}

func (s *Service) handleSubscriptionChanged(ctx context.Context, event stripe.Event) (Outcome, error) {
	sub, err := decodeSubscription(event)
	if err != nil {
		return Outcome{}, err
	}
	n := NormalizeStripeSubscription(sub)

	var outcome Outcome
	var owner string
	switch kind := n.Kind.(type) {
	case PlatformKind:
		outcome, err = s.applyPlatformSubscription(ctx, kind, n)
		owner = kind.PhotographerID
	case ClientKind:
		outcome, owner, err = s.applyClientSubscription(ctx, kind, n)
	default:
		return skipped("unknown subscription kind"), nil
	}
	if err != nil || outcome.IsSkipped() {
		return outcome, err
	}

	s.publish(ctx, RoutingSubscriptionStatusChanged, statusChangedEvent(n, owner, event.ID, ""))
	return outcome, nil
}

func (s *Service) applyPlatformSubscription(ctx context.Context, kind PlatformKind, n NormalizedSubscription) (Outcome, error) {
	if kind.PhotographerID == "" {
		log.Warnf("[Billing] Platform subscription %s has no photographer_id metadata", n.StripeSubscriptionID)
		return skipped("platform subscription missing photographer_id metadata"), nil
	}

	err := s.repo.Transaction(ctx, func(repo Repository) error {
		if err := repo.UpdatePlatformSubscription(ctx, kind.PhotographerID, PlatformSubscriptionUpdate{
			SubscriptionID: n.StripeSubscriptionID,
			CustomerID:     n.StripeCustomerID,
			Status:         n.Status,
			PeriodStart:    n.CurrentPeriodStart,
			PeriodEnd:      n.CurrentPeriodEnd,
			TrialEnd:       n.TrialEnd,
		}); err != nil {
			return fmt.Errorf("update photographer %s: %w", kind.PhotographerID, err)
		}
		if !models.IsEntitlingSubscriptionStatus(n.Status) {
			return nil
		}
		return repo.UpdatePaymentStatus(ctx, kind.PhotographerID, PaymentStatusUpdate{
			Status:              models.PaymentStatusActive,
			SubscriptionStartAt: n.CurrentPeriodStart,
			SubscriptionEndAt:   n.CurrentPeriodEnd,
		})
	})
	if err != nil {
		return Outcome{}, err
	}
	return applied(fmt.Sprintf("platform subscription %s is %s", n.StripeSubscriptionID, n.Status)), nil
}

// applyClientSubscription mirrors a client subscription and returns the owning
// client id of the stored row.
func (s *Service) applyClientSubscription(ctx context.Context, kind ClientKind, n NormalizedSubscription) (Outcome, string, error) {
	var outcome Outcome
	var owner string
	err := s.repo.Transaction(ctx, func(repo Repository) error {
		row, err := repo.GetSubscriptionByStripeID(ctx, n.StripeSubscriptionID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			if !kind.CanCreate() {
				outcome = skipped("new client subscription missing client_id or gallery_id metadata")
				return nil
			}
			row = newClientSubscriptionRow(kind)
		}

		applySnapshot(row, n, n.Status)
		if err := repo.UpsertSubscription(ctx, row); err != nil {
			return fmt.Errorf("upsert subscription %s: %w", n.StripeSubscriptionID, err)
		}

		owner = row.OwnerClientID()
		if models.IsEntitlingSubscriptionStatus(row.Status) {
			if owner != "" {
				if err := repo.UpdatePaymentStatus(ctx, owner, PaymentStatusUpdate{
					Status:              models.PaymentStatusActive,
					SubscriptionStartAt: n.CurrentPeriodStart,
					SubscriptionEndAt:   n.CurrentPeriodEnd,
				}); err != nil {
					return fmt.Errorf("activate client %s: %w", owner, err)
				}
			}
		}
		outcome = applied(fmt.Sprintf("client subscription %s is %s", n.StripeSubscriptionID, row.Status))
		return nil
	})
	if err != nil {
		return Outcome{}, "", err
	}
	return outcome, owner, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) (Outcome, error) {
	sub, err := decodeSubscription(event)
	if err != nil {
		return Outcome{}, err
	}
	n := NormalizeStripeSubscription(sub)
	n.Status = models.SubscriptionStatusCancelled

	outcome, owner, err := s.applyStatusChange(ctx, n, models.PaymentStatusInactive)
	if err != nil || outcome.IsSkipped() {
		return outcome, err
	}
	s.publish(ctx, RoutingSubscriptionStatusChanged, statusChangedEvent(n, owner, event.ID, models.PaymentStatusInactive))
	return outcome, nil
}

// applyStatusChange writes a fixed subscription status and owner payment status
// for an existing subscription, and returns the owner it updated. Client rows
// that were never mirrored are skipped.
func (s *Service) applyStatusChange(ctx context.Context, n NormalizedSubscription, paymentStatus string) (Outcome, string, error) {
	switch kind := n.Kind.(type) {
	case PlatformKind:
		if kind.PhotographerID == "" {
			return skipped("platform subscription missing photographer_id metadata"), "", nil
		}
		err := s.repo.Transaction(ctx, func(repo Repository) error {
			if err := repo.UpdatePlatformSubscription(ctx, kind.PhotographerID, PlatformSubscriptionUpdate{
				Status: n.Status,
			}); err != nil {
				return fmt.Errorf("update photographer %s: %w", kind.PhotographerID, err)
			}
			return repo.UpdatePaymentStatus(ctx, kind.PhotographerID, PaymentStatusUpdate{Status: paymentStatus})
		})
		if err != nil {
			return Outcome{}, "", err
		}
		return applied(fmt.Sprintf("platform subscription %s is %s", n.StripeSubscriptionID, n.Status)), kind.PhotographerID, nil

	case ClientKind:
		var outcome Outcome
		var owner string
		err := s.repo.Transaction(ctx, func(repo Repository) error {
			row, err := repo.GetSubscriptionByStripeID(ctx, n.StripeSubscriptionID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					outcome = skipped("no local subscription " + n.StripeSubscriptionID)
					return nil
				}
				return err
			}
			row.Status = n.Status
			if err := repo.UpsertSubscription(ctx, row); err != nil {
				return fmt.Errorf("update subscription %s: %w", n.StripeSubscriptionID, err)
			}
			owner = row.OwnerClientID()
			if owner != "" {
				if err := repo.UpdatePaymentStatus(ctx, owner, PaymentStatusUpdate{Status: paymentStatus}); err != nil {
					return fmt.Errorf("update client %s: %w", owner, err)
				}
			}
			outcome = applied(fmt.Sprintf("client subscription %s is %s", n.StripeSubscriptionID, n.Status))
			return nil
		})
		if err != nil {
			return Outcome{}, "", err
		}
		return outcome, owner, nil
	}
	return skipped("unknown subscription kind"), "", nil
}

// attachCustomerID stores the processor customer id on the user's profile and,
// when the user also has a client record, on that record too.
func attachCustomerID(ctx context.Context, repo Repository, userID, customerID string) error {
	if customerID == "" {
		return nil
	}
	if err := repo.SetUserCustomerID(ctx, userID, customerID); err != nil {
		return fmt.Errorf("attach customer to profile %s: %w", userID, err)
	}
	hasClient, err := repo.ClientExistsForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup client record for %s: %w", userID, err)
	}
	if !hasClient {
		return nil
	}
	return repo.SetClientCustomerID(ctx, userID, customerID)
}

func newClientSubscriptionRow(kind ClientKind) *models.Subscription {
	row := &models.Subscription{}
	if kind.ClientID != "" {
		clientID := kind.ClientID
		row.ClientID = &clientID
	}
	if kind.GalleryID != "" {
		galleryID := kind.GalleryID
		row.GalleryID = &galleryID
	}
	return row
}

func applySnapshot(row *models.Subscription, n NormalizedSubscription, status string) {
	row.StripeSubscriptionID = n.StripeSubscriptionID
	if n.StripeCustomerID != "" {
		row.StripeCustomerID = n.StripeCustomerID
	}
	row.Status = status
	row.CurrentPeriodStart = n.CurrentPeriodStart
	row.CurrentPeriodEnd = n.CurrentPeriodEnd
	row.TrialEnd = n.TrialEnd
}

// statusChangedEvent builds the published event. ownerID is the owner the
// handler resolved and updated, which for client rows comes from the stored
// subscription rather than the processor metadata.
func statusChangedEvent(n NormalizedSubscription, ownerID, eventID, paymentStatus string) SubscriptionStatusChanged {
	ev := SubscriptionStatusChanged{
		StripeSubscriptionID: n.StripeSubscriptionID,
		OwnerID:              ownerID,
		Status:               n.Status,
		PaymentStatus:        paymentStatus,
		EventID:              eventID,
	}
	switch n.Kind.(type) {
	case PlatformKind:
		ev.Kind = "platform"
	case ClientKind:
		ev.Kind = "client"
	}
	return ev
}
