package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeletedListing keeps a short-lived snapshot of a deleted listing so its
// seller can restore it. Rows past ExpiresAt are purged by the cleanup loop.
type DeletedListing struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID uuid.UUID      `gorm:"type:uuid;not null" json:"listing_id"`
	SellerID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"seller_id"`
	Snapshot  datatypes.JSON `json:"snapshot"`
	DeletedAt time.Time      `gorm:"not null;index" json:"deleted_at"`
	ExpiresAt time.Time      `gorm:"not null;index" json:"expires_at"`
}

func (d *DeletedListing) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}
