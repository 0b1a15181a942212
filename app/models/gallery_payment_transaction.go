package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GalleryPaymentTransaction is the ledger row for a one-time gallery payment.
// Rows are never deleted; after insert only the transfer id and notes change.
type GalleryPaymentTransaction struct {
	ID                      string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	GalleryID               string     `gorm:"type:varchar(36);not null;index" json:"gallery_id"`
	PhotographerID          string     `gorm:"type:varchar(36);not null;index" json:"photographer_id"`
	ClientID                string     `gorm:"type:varchar(36);default:'';index" json:"client_id"`
	StripePaymentIntentID   string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_payment_intent_id"`
	ShootFeeCents           int64      `gorm:"default:0" json:"shoot_fee_cents"`
	StorageFeeCents         int64      `gorm:"default:0" json:"storage_fee_cents"`
	TotalAmountCents        int64      `gorm:"default:0" json:"total_amount_cents"`
	CommissionCents         int64      `gorm:"default:0" json:"commission_cents"`
	PlatformRevenueCents    int64      `gorm:"default:0" json:"platform_revenue_cents"`
	PhotographerPayoutCents int64      `gorm:"default:0" json:"photographer_payout_cents"`
	StripeFeeCents          int64      `gorm:"default:0" json:"stripe_fee_cents"`
	PaymentOptionID         string     `gorm:"type:varchar(64);default:''" json:"payment_option_id"`
	Currency                string     `gorm:"type:varchar(8);default:'usd'" json:"currency"`
	Status                  string     `gorm:"type:varchar(32);not null;default:'completed'" json:"status"`
	StripeTransferID        *string    `gorm:"type:varchar(191);default:null" json:"stripe_transfer_id,omitempty"`
	Notes                   string     `gorm:"type:text" json:"notes"`
	PaidAt                  *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *GalleryPaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// HasTransfer reports whether a payout transfer was recorded.
func (t *GalleryPaymentTransaction) HasTransfer() bool {
	return t != nil && t.StripeTransferID != nil && *t.StripeTransferID != ""
}

// AppendNote adds a line to the free-text notes used for manual follow-up flags.
func (t *GalleryPaymentTransaction) AppendNote(note string) {
	note = strings.TrimSpace(note)
	if note == "" {
		return
	}
	if t.Notes == "" {
		t.Notes = note
		return
	}
	t.Notes = t.Notes + "\n" + note
}
