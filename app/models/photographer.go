package models

import "time"

// Photographer carries platform subscription state and Connect payout
// eligibility. ID matches the photographer's UserProfile ID.
type Photographer struct {
	ID                         string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	BusinessName               string     `gorm:"type:varchar(200);default:''" json:"business_name"`
	PlatformSubscriptionID     string     `gorm:"type:varchar(191);default:'';index" json:"platform_subscription_id"`
	PlatformSubscriptionStatus string     `gorm:"type:varchar(32);default:''" json:"platform_subscription_status"`
	PlatformSubscriptionStart  *time.Time `gorm:"type:timestamp;default:null" json:"platform_subscription_start,omitempty"`
	PlatformSubscriptionEnd    *time.Time `gorm:"type:timestamp;default:null" json:"platform_subscription_end,omitempty"`
	PlatformTrialEnd           *time.Time `gorm:"type:timestamp;default:null" json:"platform_trial_end,omitempty"`
	StripeCustomerID           string     `gorm:"type:varchar(191);default:''" json:"stripe_customer_id"`
	StripeConnectAccountID     *string    `gorm:"type:varchar(191);uniqueIndex" json:"stripe_connect_account_id,omitempty"`
	StripeConnectStatus        string     `gorm:"type:varchar(32);default:'not_started'" json:"stripe_connect_status"`
	CanReceivePayouts          bool       `gorm:"default:false" json:"can_receive_payouts"`
	BankAccountVerified        bool       `gorm:"default:false" json:"bank_account_verified"`
	CreatedAt                  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
