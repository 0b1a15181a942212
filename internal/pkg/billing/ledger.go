package billing

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/photovault/photovault/app/models"
)

const (
	// CommissionRate is the platform's share of the storage fee.
	CommissionRate = 0.50

	// Estimated processor fee: 2.9% + 30 cents. Not the processor's reported fee.
	processorFeeRate        = 0.029
	processorFeeFixedCents  = 30
	paymentTypeGallery      = "gallery_payment"
	paymentOptionShootOnly  = "shoot_only"
	metadataPaymentType     = "type"
	metadataPaymentTypeAlt  = "payment_type"
	transferIdempotencyBase = "payout_"
)

var validate = validator.New()

// GalleryPaymentMetadata is the metadata attached to a one-time gallery payment intent.
type GalleryPaymentMetadata struct {
	GalleryID               string `validate:"required"`
	PhotographerID          string `validate:"required"`
	ClientID                string
	PaymentOptionID         string
	ShootFeeCents           int64 `validate:"gte=0"`
	StorageFeeCents         int64 `validate:"gte=0"`
	TotalAmountCents        int64 `validate:"gte=0"`
	PlatformRevenueCents    int64 `validate:"gte=0"`
	PhotographerPayoutCents int64 `validate:"gte=0"`
}

// IsGalleryPayment reports whether payment intent metadata carries the gallery payment marker.
func IsGalleryPayment(metadata map[string]string) bool {
	return metaValue(metadata, metadataPaymentType, metadataPaymentTypeAlt) == paymentTypeGallery
}

// ParseGalleryPaymentMetadata reads amounts verbatim from metadata. Amounts that
// are missing or not integers count as zero.
func ParseGalleryPaymentMetadata(metadata map[string]string) (GalleryPaymentMetadata, error) {
	m := GalleryPaymentMetadata{
		GalleryID:               metaValue(metadata, "galleryId", "gallery_id"),
		PhotographerID:          metaValue(metadata, "photographerId", "photographer_id"),
		ClientID:                metaValue(metadata, "clientId", "client_id"),
		PaymentOptionID:         metaValue(metadata, "paymentOptionId", "payment_option_id"),
		ShootFeeCents:           metaCents(metadata, "shootFeeCents", "shoot_fee_cents"),
		StorageFeeCents:         metaCents(metadata, "storageFeeCents", "storage_fee_cents"),
		TotalAmountCents:        metaCents(metadata, "totalAmountCents", "total_amount_cents"),
		PlatformRevenueCents:    metaCents(metadata, "photovaultRevenueCents", "platform_revenue_cents"),
		PhotographerPayoutCents: metaCents(metadata, "photographerPayoutCents", "photographer_payout_cents"),
	}
	if err := validate.Struct(m); err != nil {
		return m, fmt.Errorf("invalid gallery payment metadata: %w", err)
	}
	return m, nil
}

// IsShootOnly reports whether the chosen pricing option bills the shoot without storage.
func (m GalleryPaymentMetadata) IsShootOnly() bool {
	return m.PaymentOptionID == paymentOptionShootOnly
}

// CommissionCents is the locally recomputed platform commission on storage.
func CommissionCents(storageFeeCents int64) int64 {
	return int64(math.Round(float64(storageFeeCents) * CommissionRate))
}

// EstimatedProcessorFeeCents approximates the processor fee for a charge.
func EstimatedProcessorFeeCents(amountCents int64) int64 {
	return int64(math.Round(float64(amountCents)*processorFeeRate)) + processorFeeFixedCents
}

// newLedgerRow builds the ledger entry for a succeeded gallery payment.
func newLedgerRow(paymentIntentID string, chargedCents int64, currency string, m GalleryPaymentMetadata, paidAt time.Time) *models.GalleryPaymentTransaction {
	return &models.GalleryPaymentTransaction{
		GalleryID:               m.GalleryID,
		PhotographerID:          m.PhotographerID,
		ClientID:                m.ClientID,
		StripePaymentIntentID:   paymentIntentID,
		ShootFeeCents:           m.ShootFeeCents,
		StorageFeeCents:         m.StorageFeeCents,
		TotalAmountCents:        m.TotalAmountCents,
		CommissionCents:         CommissionCents(m.StorageFeeCents),
		PlatformRevenueCents:    m.PlatformRevenueCents,
		PhotographerPayoutCents: m.PhotographerPayoutCents,
		StripeFeeCents:          EstimatedProcessorFeeCents(chargedCents),
		PaymentOptionID:         m.PaymentOptionID,
		Currency:                currency,
		Status:                  models.TransactionStatusCompleted,
		PaidAt:                  &paidAt,
	}
}

func metaValue(metadata map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(metadata[k]); v != "" {
			return v
		}
	}
	return ""
}

func metaCents(metadata map[string]string, keys ...string) int64 {
	v := metaValue(metadata, keys...)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
