package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGalleryPaymentTransactionAppendNote(t *testing.T) {
	tx := &GalleryPaymentTransaction{}

	tx.AppendNote("  ")
	assert.Equal(t, "", tx.Notes)

	tx.AppendNote("first")
	tx.AppendNote("second")
	assert.Equal(t, "first\nsecond", tx.Notes)
}

func TestGalleryPaymentTransactionHasTransfer(t *testing.T) {
	empty := ""
	id := "tr_123"

	assert.False(t, (*GalleryPaymentTransaction)(nil).HasTransfer())
	assert.False(t, (&GalleryPaymentTransaction{}).HasTransfer())
	assert.False(t, (&GalleryPaymentTransaction{StripeTransferID: &empty}).HasTransfer())
	assert.True(t, (&GalleryPaymentTransaction{StripeTransferID: &id}).HasTransfer())
}

func TestBillingWebhookEventNeedsProcessing(t *testing.T) {
	now := time.Now()

	assert.True(t, (*BillingWebhookEvent)(nil).NeedsProcessing())
	assert.True(t, (&BillingWebhookEvent{}).NeedsProcessing())
	assert.True(t, (&BillingWebhookEvent{ProcessedAt: &now, ProcessingError: "boom"}).NeedsProcessing())
	assert.False(t, (&BillingWebhookEvent{ProcessedAt: &now}).NeedsProcessing())
}

func TestIsEntitlingSubscriptionStatus(t *testing.T) {
	for _, status := range []string{SubscriptionStatusActive, SubscriptionStatusTrialing} {
		assert.True(t, IsEntitlingSubscriptionStatus(status), status)
	}
	for _, status := range []string{SubscriptionStatusPastDue, SubscriptionStatusCancelled, ""} {
		assert.False(t, IsEntitlingSubscriptionStatus(status), status)
	}
}

func TestSubscriptionOwnerClientID(t *testing.T) {
	client := "c1"
	assert.Equal(t, "", (*Subscription)(nil).OwnerClientID())
	assert.Equal(t, "", (&Subscription{}).OwnerClientID())
	assert.Equal(t, "c1", (&Subscription{ClientID: &client}).OwnerClientID())
}
