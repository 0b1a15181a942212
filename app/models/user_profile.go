package models

import "time"

// UserProfile is the billing-relevant view of a person (client or photographer).
// Rows are created at signup; billing only mutates them.
type UserProfile struct {
	ID                     string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email                  string     `gorm:"type:varchar(200);default:''" json:"email"`
	FullName               string     `gorm:"type:varchar(150);default:''" json:"full_name"`
	PaymentStatus          string     `gorm:"type:varchar(32);not null;default:'inactive';index" json:"payment_status"`
	LastPaymentAt          *time.Time `gorm:"type:timestamp;default:null" json:"last_payment_at,omitempty"`
	SubscriptionStartAt    *time.Time `gorm:"type:timestamp;default:null" json:"subscription_start_at,omitempty"`
	SubscriptionEndAt      *time.Time `gorm:"type:timestamp;default:null" json:"subscription_end_at,omitempty"`
	StripeCustomerID       string     `gorm:"type:varchar(191);default:'';index" json:"stripe_customer_id"`
	StripeConnectAccountID string     `gorm:"type:varchar(191);default:'';index" json:"stripe_connect_account_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Client is the secondary client profile. Not every user has one.
type Client struct {
	ID               string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"user_id"`
	StripeCustomerID string    `gorm:"type:varchar(191);default:''" json:"stripe_customer_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
