package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingResponse reports the committed sale and, separately, whether the
// out-of-band email and SMS notifications reached the seller.
type BookingResponse struct {
	Message              string    `json:"message"`
	ListingID            uuid.UUID `json:"listing_id"`
	SaleID               uuid.UUID `json:"sale_id"`
	MessageID            uuid.UUID `json:"message_id"`
	SaleRecorded         bool      `json:"sale_recorded"`
	MessageCreated       bool      `json:"message_created"`
	EmailSent            bool      `json:"email_sent"`
	SMSSent              bool      `json:"sms_sent"`
	NotificationDegraded bool      `json:"notification_degraded"`
	RemainingQuantity    int       `json:"remaining_quantity"`
	Status               string    `json:"status"`
}

type SaleResponse struct {
	ID          uuid.UUID       `json:"id"`
	ListingID   uuid.UUID       `json:"listing_id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	SellerName  string          `json:"seller_name"`
	BuyerID     uuid.UUID       `json:"buyer_id"`
	BuyerName   string          `json:"buyer_name"`
	Title       string          `json:"title"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"`
	Condition   string          `json:"condition"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	SoldAt      time.Time       `json:"sold_at"`
}
