package billing

import (
	"context"
	"time"

	"github.com/photovault/photovault/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
// Lookups return gorm.ErrRecordNotFound when no row matches.
type Repository interface {
	// Transaction runs fn against a repository bound to a single DB transaction.
	Transaction(ctx context.Context, fn func(repo Repository) error) error

	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	UpsertSubscription(ctx context.Context, sub *models.Subscription) error

	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
	UpdatePaymentStatus(ctx context.Context, userID string, upd PaymentStatusUpdate) error
	SetUserCustomerID(ctx context.Context, userID, customerID string) error
	ClientExistsForUser(ctx context.Context, userID string) (bool, error)
	SetClientCustomerID(ctx context.Context, userID, customerID string) error

	UpdatePlatformSubscription(ctx context.Context, photographerID string, upd PlatformSubscriptionUpdate) error
	GetPhotographerByConnectAccountID(ctx context.Context, accountID string) (*models.Photographer, error)
	UpdateConnectStatus(ctx context.Context, photographerID string, upd ConnectStatusUpdate) error

	GetGallery(ctx context.Context, galleryID string) (*models.PhotoGallery, error)
	MarkGalleryPaid(ctx context.Context, galleryID, paymentIntentID string, paidAt time.Time) error
	SeedGalleryDownloadTracking(ctx context.Context, galleryID string, limit int) error

	GetTransaction(ctx context.Context, id string) (*models.GalleryPaymentTransaction, error)
	GetTransactionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.GalleryPaymentTransaction, error)
	CreateTransaction(ctx context.Context, txn *models.GalleryPaymentTransaction) error
	RecordTransferResult(ctx context.Context, id string, transferID *string, notes string) error
	ListPendingPayoutTransactionIDs(ctx context.Context, limit int) ([]string, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError, outcome string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(ctx context.Context, fn func(repo Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpsertSubscription(ctx context.Context, sub *models.Subscription) error {
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stripe_customer_id",
			"status",
			"current_period_start",
			"current_period_end",
			"trial_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID and owner references are populated after upsert.
	return r.db.WithContext(ctx).Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).First(sub).Error
}

func (r *gormRepository) GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).Where("id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *gormRepository) UpdatePaymentStatus(ctx context.Context, userID string, upd PaymentStatusUpdate) error {
	updates := map[string]interface{}{
		"payment_status": upd.Status,
	}
	if upd.LastPaymentAt != nil {
		updates["last_payment_at"] = upd.LastPaymentAt
	}
	if upd.SubscriptionStartAt != nil {
		updates["subscription_start_at"] = upd.SubscriptionStartAt
	}
	if upd.SubscriptionEndAt != nil {
		updates["subscription_end_at"] = upd.SubscriptionEndAt
	}
	return r.db.WithContext(ctx).Model(&models.UserProfile{}).Where("id = ?", userID).Updates(updates).Error
}

func (r *gormRepository) SetUserCustomerID(ctx context.Context, userID, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *gormRepository) ClientExistsForUser(ctx context.Context, userID string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Client{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) SetClientCustomerID(ctx context.Context, userID, customerID string) error {
	return r.db.WithContext(ctx).Model(&models.Client{}).
		Where("user_id = ?", userID).
		Update("stripe_customer_id", customerID).Error
}

func (r *gormRepository) UpdatePlatformSubscription(ctx context.Context, photographerID string, upd PlatformSubscriptionUpdate) error {
	updates := map[string]interface{}{}
	if upd.SubscriptionID != "" {
		updates["platform_subscription_id"] = upd.SubscriptionID
	}
	if upd.CustomerID != "" {
		updates["stripe_customer_id"] = upd.CustomerID
	}
	if upd.Status != "" {
		updates["platform_subscription_status"] = upd.Status
	}
	if upd.PeriodStart != nil {
		updates["platform_subscription_start"] = upd.PeriodStart
	}
	if upd.PeriodEnd != nil {
		updates["platform_subscription_end"] = upd.PeriodEnd
	}
	if upd.TrialEnd != nil {
		updates["platform_trial_end"] = upd.TrialEnd
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Photographer{}).Where("id = ?", photographerID).Updates(updates).Error
}

func (r *gormRepository) GetPhotographerByConnectAccountID(ctx context.Context, accountID string) (*models.Photographer, error) {
	var p models.Photographer
	if err := r.db.WithContext(ctx).Where("stripe_connect_account_id = ?", accountID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) UpdateConnectStatus(ctx context.Context, photographerID string, upd ConnectStatusUpdate) error {
	updates := map[string]interface{}{
		"stripe_connect_status": upd.Status,
		"can_receive_payouts":   upd.CanReceivePayouts,
		"bank_account_verified": upd.BankAccountVerified,
	}
	return r.db.WithContext(ctx).Model(&models.Photographer{}).Where("id = ?", photographerID).Updates(updates).Error
}

func (r *gormRepository) GetGallery(ctx context.Context, galleryID string) (*models.PhotoGallery, error) {
	var g models.PhotoGallery
	if err := r.db.WithContext(ctx).Where("id = ?", galleryID).First(&g).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *gormRepository) MarkGalleryPaid(ctx context.Context, galleryID, paymentIntentID string, paidAt time.Time) error {
	updates := map[string]interface{}{
		"payment_status":    models.GalleryPaymentStatusPaid,
		"paid_at":           paidAt,
		"payment_intent_id": paymentIntentID,
	}
	return r.db.WithContext(ctx).Model(&models.PhotoGallery{}).Where("id = ?", galleryID).Updates(updates).Error
}

func (r *gormRepository) SeedGalleryDownloadTracking(ctx context.Context, galleryID string, limit int) error {
	updates := map[string]interface{}{
		"download_limit": limit,
		"downloads_used": 0,
	}
	return r.db.WithContext(ctx).Model(&models.PhotoGallery{}).Where("id = ?", galleryID).Updates(updates).Error
}

func (r *gormRepository) GetTransaction(ctx context.Context, id string) (*models.GalleryPaymentTransaction, error) {
	var txn models.GalleryPaymentTransaction
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) GetTransactionByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.GalleryPaymentTransaction, error) {
	var txn models.GalleryPaymentTransaction
	if err := r.db.WithContext(ctx).Where("stripe_payment_intent_id = ?", paymentIntentID).First(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *gormRepository) CreateTransaction(ctx context.Context, txn *models.GalleryPaymentTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *gormRepository) RecordTransferResult(ctx context.Context, id string, transferID *string, notes string) error {
	updates := map[string]interface{}{
		"notes": notes,
	}
	if transferID != nil {
		updates["stripe_transfer_id"] = *transferID
	}
	return r.db.WithContext(ctx).Model(&models.GalleryPaymentTransaction{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListPendingPayoutTransactionIDs(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.GalleryPaymentTransaction{}).
		Where("stripe_transfer_id IS NULL AND photographer_payout_cents > 0").
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.BillingWebhookEvent) (bool, *models.BillingWebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingWebhookEvent
	if err := r.db.WithContext(ctx).Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError, outcome string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
		"outcome":          outcome,
	}
	return r.db.WithContext(ctx).Model(&models.BillingWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
