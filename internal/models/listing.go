package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusAvailable = "Available"
	StatusReserved  = "Reserved"
	StatusSold      = "Sold"
	StatusHidden    = "Hidden"
)

var ValidStatuses = map[string]bool{
	StatusAvailable: true,
	StatusReserved:  true,
	StatusSold:      true,
	StatusHidden:    true,
}

var Categories = []string{"Books", "Electronics", "Furniture", "Clothing", "Sports", "Stationery", "Other"}

var Conditions = []string{"New", "Like New", "Good", "Fair", "Poor"}

// Listing is an item offered by its seller. Only the seller may mutate it.
// Status Sold implies Quantity <= 0.
type Listing struct {
	ID            uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	SellerID      uuid.UUID                   `gorm:"type:uuid;not null;index" json:"seller_id"`
	Title         string                      `gorm:"size:100;not null" json:"title"`
	Category      string                      `gorm:"size:50;not null;index" json:"category"`
	Price         decimal.Decimal             `gorm:"type:decimal(12,2);not null" json:"price"`
	Condition     string                      `gorm:"size:20" json:"condition"`
	Description   string                      `gorm:"type:text" json:"description"`
	ContactMethod string                      `gorm:"size:255" json:"contact_method,omitempty"`
	Quantity      int                         `gorm:"not null;default:1" json:"quantity"`
	Status        string                      `gorm:"size:20;not null;default:'Available';index" json:"status"`
	Images        datatypes.JSONSlice[string] `json:"images"`
	Views         int                         `gorm:"default:0" json:"views"`
	CreatedAt     time.Time                   `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time                   `json:"updated_at"`
	Seller        *User                       `gorm:"foreignKey:SellerID" json:"-"`
}

func (l *Listing) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = StatusAvailable
	}
	return nil
}

func (l *Listing) IsSold() bool {
	return l.Status == StatusSold
}
