package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SaleRecord is the immutable ledger row written once per booked unit. The
// descriptive fields are copied from the listing at the time of sale.
type SaleRecord struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	ListingID     uuid.UUID                   `gorm:"type:uuid;not null;index" json:"listing_id"`
	SellerID      uuid.UUID                   `gorm:"type:uuid;not null;index" json:"seller_id"`
	BuyerID       uuid.UUID                   `gorm:"type:uuid;not null;index" json:"buyer_id"`
	Title         string                      `gorm:"size:100" json:"title"`
	Category      string                      `gorm:"size:50" json:"category"`
	Price         decimal.Decimal             `gorm:"type:decimal(12,2)" json:"price"`
	Condition     string                      `gorm:"size:20" json:"condition"`
	Description   string                      `gorm:"type:text" json:"description"`
	ContactMethod string                      `gorm:"size:255" json:"contact_method,omitempty"`
	Images        datatypes.JSONSlice[string] `json:"images"`
	SoldAt        time.Time                   `gorm:"not null;index" json:"sold_at"`
	Listing       *Listing                    `gorm:"foreignKey:ListingID" json:"-"`
	Seller        *User                       `gorm:"foreignKey:SellerID" json:"-"`
	Buyer         *User                       `gorm:"foreignKey:BuyerID" json:"-"`
}

func (SaleRecord) TableName() string {
	return "sold_items"
}

func (s *SaleRecord) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.SoldAt.IsZero() {
		s.SoldAt = time.Now().UTC()
	}
	return nil
}
