package models

import "time"

// PhotoGallery holds the payment and download-tracking fields of a gallery.
type PhotoGallery struct {
	ID              string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	PhotographerID  string     `gorm:"type:varchar(36);index" json:"photographer_id"`
	ClientID        *string    `gorm:"type:varchar(36);index" json:"client_id,omitempty"`
	Name            string     `gorm:"type:varchar(200);default:''" json:"name"`
	PaymentStatus   string     `gorm:"type:varchar(32);not null;default:'unpaid'" json:"payment_status"`
	PaidAt          *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	PaymentIntentID string     `gorm:"type:varchar(191);default:''" json:"payment_intent_id"`
	PhotoCount      int        `gorm:"default:0" json:"photo_count"`
	DownloadLimit   *int       `gorm:"default:null" json:"download_limit,omitempty"`
	DownloadsUsed   int        `gorm:"default:0" json:"downloads_used"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasDownloadTracking reports whether the gallery counts downloads against a limit.
func (g *PhotoGallery) HasDownloadTracking() bool {
	return g != nil && g.DownloadLimit != nil
}
