package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v76"
	"gorm.io/gorm"
)

// GalleryPaymentSucceeded is published after a gallery payment is recorded.
type GalleryPaymentSucceeded struct {
	TransactionID           string `json:"transaction_id"`
	GalleryID               string `json:"gallery_id"`
	PhotographerID          string `json:"photographer_id"`
	ClientID                string `json:"client_id,omitempty"`
	PaymentIntentID         string `json:"payment_intent_id"`
	TotalAmountCents        int64  `json:"total_amount_cents"`
	PhotographerPayoutCents int64  `json:"photographer_payout_cents"`
	EventID                 string `json:"event_id"`
}

func (s *Service) handlePaymentIntentSucceeded(ctx context.Context, event stripe.Event) (Outcome, error) {
	pi, err := decodePaymentIntent(event)
	if err != nil {
		return Outcome{}, err
	}
	if !IsGalleryPayment(pi.Metadata) {
		return skipped("payment intent is not a gallery payment"), nil
	}

	meta, err := ParseGalleryPaymentMetadata(pi.Metadata)
	if err != nil {
		log.Warnf("[Billing] Payment intent %s: %v", pi.ID, err)
		return skipped(err.Error()), nil
	}

	existing, err := s.repo.GetTransactionByPaymentIntentID(ctx, pi.ID)
	if err == nil {
		// Redelivery: the ledger row exists. Only an unfinished payout is retried.
		if meta.PhotographerPayoutCents > 0 && !existing.HasTransfer() {
			if err := s.settlePayout(ctx, existing); err != nil {
				return Outcome{}, err
			}
			return applied("payout re-attempted for " + pi.ID), nil
		}
		return skipped("payment intent " + pi.ID + " already recorded"), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Outcome{}, err
	}

	paidAt := s.now()
	currency := s.currency
	if pi.Currency != "" {
		currency = string(pi.Currency)
	}
	txn := newLedgerRow(pi.ID, pi.Amount, currency, meta, paidAt)

	err = s.repo.Transaction(ctx, func(repo Repository) error {
		if err := repo.MarkGalleryPaid(ctx, meta.GalleryID, pi.ID, paidAt); err != nil {
			return fmt.Errorf("mark gallery %s paid: %w", meta.GalleryID, err)
		}
		if err := repo.CreateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("insert gallery payment transaction: %w", err)
		}
		if !meta.IsShootOnly() {
			return nil
		}
		gallery, err := repo.GetGallery(ctx, meta.GalleryID)
		if err != nil {
			return fmt.Errorf("load gallery %s: %w", meta.GalleryID, err)
		}
		return repo.SeedGalleryDownloadTracking(ctx, meta.GalleryID, gallery.PhotoCount)
	})
	if err != nil {
		return Outcome{}, err
	}

	log.Infof("[Billing] Gallery %s paid via %s (total=%d payout=%d)", meta.GalleryID, pi.ID, meta.TotalAmountCents, meta.PhotographerPayoutCents)
	s.publish(ctx, RoutingGalleryPaymentSucceeded, GalleryPaymentSucceeded{
		TransactionID:           txn.ID,
		GalleryID:               meta.GalleryID,
		PhotographerID:          meta.PhotographerID,
		ClientID:                meta.ClientID,
		PaymentIntentID:         pi.ID,
		TotalAmountCents:        meta.TotalAmountCents,
		PhotographerPayoutCents: meta.PhotographerPayoutCents,
		EventID:                 event.ID,
	})

	if meta.PhotographerPayoutCents > 0 {
		if err := s.settlePayout(ctx, txn); err != nil {
			return Outcome{}, err
		}
	}
	return applied("gallery " + meta.GalleryID + " paid"), nil
}

func (s *Service) handleAccountUpdated(ctx context.Context, event stripe.Event) (Outcome, error) {
	acct, err := decodeAccount(event)
	if err != nil {
		return Outcome{}, err
	}

	photographer, err := s.repo.GetPhotographerByConnectAccountID(ctx, acct.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return skipped("no photographer for connected account " + acct.ID), nil
		}
		return Outcome{}, err
	}

	upd := ConnectStatusUpdate{
		Status:              connectStatus(acct.DetailsSubmitted),
		CanReceivePayouts:   acct.PayoutsEnabled,
		BankAccountVerified: acct.DetailsSubmitted,
	}
	if err := s.repo.UpdateConnectStatus(ctx, photographer.ID, upd); err != nil {
		return Outcome{}, fmt.Errorf("update connect status for %s: %w", photographer.ID, err)
	}
	return applied(fmt.Sprintf("photographer %s connect status %s", photographer.ID, upd.Status)), nil
}
