package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/photovault/photovault/app/models"
	"gorm.io/gorm"
)

const (
	notePayoutPendingSetup = "Payout pending: photographer has not completed Stripe Connect account setup"
	noteTransferFailed     = "Transfer failed: "
)

// PayoutTransferFailed is published when a payout transfer could not be created.
type PayoutTransferFailed struct {
	TransactionID  string `json:"transaction_id"`
	PhotographerID string `json:"photographer_id"`
	AmountCents    int64  `json:"amount_cents"`
	Error          string `json:"error"`
}

// settlePayout moves the photographer's share for a recorded payment. The
// payment already succeeded, so transfer failures end up in the ledger notes
// and the retry queue instead of failing the event.
func (s *Service) settlePayout(ctx context.Context, txn *models.GalleryPaymentTransaction) error {
	destination, profile, err := s.payoutDestination(ctx, txn.PhotographerID)
	if err != nil {
		return err
	}

	if destination == "" {
		log.Warnf("[Billing] Payout for transaction %s pending: photographer %s has no connected account", txn.ID, txn.PhotographerID)
		if strings.Contains(txn.Notes, notePayoutPendingSetup) {
			return nil
		}
		txn.AppendNote(notePayoutPendingSetup)
		if err := s.repo.RecordTransferResult(ctx, txn.ID, nil, txn.Notes); err != nil {
			return fmt.Errorf("record pending payout for %s: %w", txn.ID, err)
		}
		s.notifyPayoutPending(ctx, profile, txn)
		return nil
	}

	transferID, err := s.gateway.CreateTransfer(ctx, s.transferRequest(txn, destination))
	if err != nil {
		log.Errorf("[Billing] Transfer for transaction %s failed: %v", txn.ID, err)
		if rerr := s.recordTransferFailure(ctx, txn, err); rerr != nil {
			return rerr
		}
		s.publish(ctx, RoutingPayoutTransferFailed, PayoutTransferFailed{
			TransactionID:  txn.ID,
			PhotographerID: txn.PhotographerID,
			AmountCents:    txn.PhotographerPayoutCents,
			Error:          err.Error(),
		})
		s.schedulePayoutRetry(ctx, txn.ID)
		return nil
	}

	txn.StripeTransferID = &transferID
	if err := s.repo.RecordTransferResult(ctx, txn.ID, &transferID, txn.Notes); err != nil {
		return fmt.Errorf("record transfer %s for %s: %w", transferID, txn.ID, err)
	}
	log.Infof("[Billing] Transfer %s created for transaction %s (%d cents)", transferID, txn.ID, txn.PhotographerPayoutCents)
	return nil
}

// RetryPayout re-attempts the transfer for a ledger row without one. Gateway
// errors are returned so the job queue can back off and retry. A photographer
// without a connected account is not an error; the pending sweep picks the row
// up again later.
func (s *Service) RetryPayout(ctx context.Context, transactionID string) error {
	txn, err := s.repo.GetTransaction(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("load transaction %s: %w", transactionID, err)
	}
	if txn.HasTransfer() || txn.PhotographerPayoutCents <= 0 {
		return nil
	}

	destination, _, err := s.payoutDestination(ctx, txn.PhotographerID)
	if err != nil {
		return err
	}
	if destination == "" {
		log.Infof("[Billing] Payout for transaction %s still waiting for photographer %s to connect an account", txn.ID, txn.PhotographerID)
		return nil
	}

	transferID, err := s.gateway.CreateTransfer(ctx, s.transferRequest(txn, destination))
	if err != nil {
		if rerr := s.recordTransferFailure(ctx, txn, err); rerr != nil {
			log.Errorf("[Billing] %v", rerr)
		}
		return err
	}
	txn.StripeTransferID = &transferID
	txn.AppendNote("Transfer retried successfully: " + transferID)
	return s.repo.RecordTransferResult(ctx, txn.ID, &transferID, txn.Notes)
}

// PendingPayouts lists ledger rows that owe the photographer a transfer.
func (s *Service) PendingPayouts(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.repo.ListPendingPayoutTransactionIDs(ctx, limit)
}

func (s *Service) payoutDestination(ctx context.Context, photographerID string) (string, *models.UserProfile, error) {
	profile, err := s.repo.GetUserProfile(ctx, photographerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("load photographer profile %s: %w", photographerID, err)
	}
	return strings.TrimSpace(profile.StripeConnectAccountID), profile, nil
}

// recordTransferFailure notes a failed attempt on the ledger row. The number of
// recorded failures scopes the idempotency key of the next attempt.
func (s *Service) recordTransferFailure(ctx context.Context, txn *models.GalleryPaymentTransaction, cause error) error {
	txn.AppendNote(noteTransferFailed + cause.Error())
	if err := s.repo.RecordTransferResult(ctx, txn.ID, nil, txn.Notes); err != nil {
		return fmt.Errorf("record failed transfer for %s: %w", txn.ID, err)
	}
	return nil
}

// transferIdempotencyKey is payout_<payment intent> for the first attempt. The
// processor caches failed responses under a key, so every attempt after a
// recorded failure gets its own payout_<payment intent>_<n>.
func transferIdempotencyKey(txn *models.GalleryPaymentTransaction) string {
	key := transferIdempotencyBase + txn.StripePaymentIntentID
	if failures := strings.Count(txn.Notes, noteTransferFailed); failures > 0 {
		key = fmt.Sprintf("%s_%d", key, failures)
	}
	return key
}

func (s *Service) transferRequest(txn *models.GalleryPaymentTransaction, destination string) TransferRequest {
	currency := txn.Currency
	if currency == "" {
		currency = s.currency
	}
	return TransferRequest{
		AmountCents:          txn.PhotographerPayoutCents,
		Currency:             currency,
		DestinationAccountID: destination,
		TransferGroup:        "gallery_" + txn.GalleryID,
		IdempotencyKey:       transferIdempotencyKey(txn),
		Metadata: map[string]string{
			"transaction_id":    txn.ID,
			"gallery_id":        txn.GalleryID,
			"photographer_id":   txn.PhotographerID,
			"payment_intent_id": txn.StripePaymentIntentID,
		},
	}
}

func (s *Service) notifyPayoutPending(ctx context.Context, profile *models.UserProfile, txn *models.GalleryPaymentTransaction) {
	if s.notifier == nil || profile == nil || profile.Email == "" {
		return
	}
	if err := s.notifier.NotifyPayoutPending(ctx, profile.Email, txn.GalleryID, txn.PhotographerPayoutCents); err != nil {
		log.Warnf("[Billing] Payout pending notice to %s failed: %v", profile.ID, err)
	}
}

func (s *Service) schedulePayoutRetry(ctx context.Context, transactionID string) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.SchedulePayoutRetry(ctx, transactionID); err != nil {
		log.Errorf("[Billing] Could not schedule payout retry for %s: %v", transactionID, err)
	}
}
