package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Subscription mirrors a processor subscription for either a client's gallery
// storage plan or a photographer's platform plan. Exactly one row exists per
// StripeSubscriptionID.
type Subscription struct {
	ID                   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID             *string    `gorm:"type:varchar(36);index" json:"client_id,omitempty"`
	PhotographerID       *string    `gorm:"type:varchar(36);index" json:"photographer_id,omitempty"`
	GalleryID            *string    `gorm:"type:varchar(36);index" json:"gallery_id,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;uniqueIndex" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	Status               string     `gorm:"type:varchar(32);not null;default:'active';index" json:"status"`
	CurrentPeriodStart   *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialEnd             *time.Time `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (s *Subscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// OwnerClientID returns the owning client id or an empty string.
func (s *Subscription) OwnerClientID() string {
	if s == nil || s.ClientID == nil {
		return ""
	}
	return *s.ClientID
}
