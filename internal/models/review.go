package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Review is written by a buyer about a seller they purchased from. At most
// one review exists per (buyer, seller, listing).
type Review struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID  uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_reviews_triple,priority:2" json:"seller_id"`
	BuyerID   uuid.UUID  `gorm:"type:uuid;not null;index;uniqueIndex:idx_reviews_triple,priority:1" json:"buyer_id"`
	ListingID *uuid.UUID `gorm:"type:uuid;index;uniqueIndex:idx_reviews_triple,priority:3" json:"listing_id,omitempty"`
	Rating    int        `gorm:"not null" json:"rating"`
	Text      string     `gorm:"type:text" json:"text"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	Seller    *User      `gorm:"foreignKey:SellerID" json:"-"`
	Buyer     *User      `gorm:"foreignKey:BuyerID" json:"-"`
	Listing   *Listing   `gorm:"foreignKey:ListingID" json:"-"`
}

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
