package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MessageTypeText  = "text"
	MessageTypeOffer = "offer"

	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
)

// Message is a direct message. Offer messages carry an amount and a status
// that only the listing's seller may change.
type Message struct {
	ID          uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"sender_id"`
	ReceiverID  uuid.UUID           `gorm:"type:uuid;not null;index" json:"receiver_id"`
	ListingID   *uuid.UUID          `gorm:"type:uuid;index" json:"listing_id,omitempty"`
	Text        string              `gorm:"type:text;not null" json:"text"`
	Type        string              `gorm:"size:10;not null;default:'text'" json:"type"`
	OfferAmount decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"offer_amount"`
	OfferStatus string              `gorm:"size:10" json:"offer_status,omitempty"`
	CreatedAt   time.Time           `gorm:"index" json:"created_at"`
	Sender      *User               `gorm:"foreignKey:SenderID" json:"-"`
	Receiver    *User               `gorm:"foreignKey:ReceiverID" json:"-"`
	Listing     *Listing            `gorm:"foreignKey:ListingID" json:"-"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Type == "" {
		m.Type = MessageTypeText
	}
	return nil
}
