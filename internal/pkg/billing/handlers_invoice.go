package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/photovault/photovault/app/models"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

func (s *Service) invoiceSubscription(ctx context.Context, event stripe.Event) (*stripe.Invoice, *NormalizedSubscription, error) {
	inv, err := decodeInvoice(event)
	if err != nil {
		return nil, nil, err
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return inv, nil, nil
	}
	sub, err := s.gateway.GetSubscription(ctx, inv.Subscription.ID)
	if err != nil {
		return nil, nil, err
	}
	n := NormalizeStripeSubscription(sub)
	return inv, &n, nil
}

func (s *Service) handleInvoicePaid(ctx context.Context, event stripe.Event) (Outcome, error) {
	inv, n, err := s.invoiceSubscription(ctx, event)
	if err != nil {
		return Outcome{}, err
	}
	if n == nil {
		return skipped("invoice has no subscription"), nil
	}

	paidAt := s.now()
	if inv.StatusTransitions != nil {
		if t := unixTime(inv.StatusTransitions.PaidAt); t != nil {
			paidAt = *t
		}
	}
	status := paidStatus(n.Status)
	profileUpdate := PaymentStatusUpdate{
		Status:              models.PaymentStatusActive,
		LastPaymentAt:       &paidAt,
		SubscriptionStartAt: n.CurrentPeriodStart,
		SubscriptionEndAt:   n.CurrentPeriodEnd,
	}

	var outcome Outcome
	var owner string
	switch kind := n.Kind.(type) {
	case PlatformKind:
		if kind.PhotographerID == "" {
			return skipped("platform subscription missing photographer_id metadata"), nil
		}
		owner = kind.PhotographerID
		err = s.repo.Transaction(ctx, func(repo Repository) error {
			if err := repo.UpdatePlatformSubscription(ctx, kind.PhotographerID, PlatformSubscriptionUpdate{
				SubscriptionID: n.StripeSubscriptionID,
				Status:         status,
				PeriodStart:    n.CurrentPeriodStart,
				PeriodEnd:      n.CurrentPeriodEnd,
				TrialEnd:       n.TrialEnd,
			}); err != nil {
				return fmt.Errorf("update photographer %s: %w", kind.PhotographerID, err)
			}
			return repo.UpdatePaymentStatus(ctx, kind.PhotographerID, profileUpdate)
		})
		outcome = applied(fmt.Sprintf("platform invoice %s paid", inv.ID))

	case ClientKind:
		err = s.repo.Transaction(ctx, func(repo Repository) error {
			row, err := repo.GetSubscriptionByStripeID(ctx, n.StripeSubscriptionID)
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				if !kind.CanCreate() {
					outcome = skipped("no local subscription " + n.StripeSubscriptionID)
					return nil
				}
				row = newClientSubscriptionRow(kind)
			}
			applySnapshot(row, *n, status)
			if err := repo.UpsertSubscription(ctx, row); err != nil {
				return fmt.Errorf("upsert subscription %s: %w", n.StripeSubscriptionID, err)
			}
			owner = row.OwnerClientID()
			if owner != "" {
				if err := repo.UpdatePaymentStatus(ctx, owner, profileUpdate); err != nil {
					return fmt.Errorf("activate client %s: %w", owner, err)
				}
			}
			outcome = applied(fmt.Sprintf("client invoice %s paid", inv.ID))
			return nil
		})

	default:
		return skipped("unknown subscription kind"), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	if !outcome.IsSkipped() {
		n.Status = status
		s.publish(ctx, RoutingSubscriptionStatusChanged, statusChangedEvent(*n, owner, event.ID, models.PaymentStatusActive))
	}
	return outcome, nil
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) (Outcome, error) {
	_, n, err := s.invoiceSubscription(ctx, event)
	if err != nil {
		return Outcome{}, err
	}
	if n == nil {
		return skipped("invoice has no subscription"), nil
	}

	n.Status = models.SubscriptionStatusPastDue
	outcome, owner, err := s.applyStatusChange(ctx, *n, models.PaymentStatusGracePeriod)
	if err != nil || outcome.IsSkipped() {
		return outcome, err
	}
	s.publish(ctx, RoutingSubscriptionStatusChanged, statusChangedEvent(*n, owner, event.ID, models.PaymentStatusGracePeriod))
	return outcome, nil
}
