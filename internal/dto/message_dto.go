package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SendMessageRequest sends a text message, or a price offer on a listing
// when Type is "offer".
type SendMessageRequest struct {
	ReceiverID  uuid.UUID        `json:"receiver_id"`
	ListingID   *uuid.UUID       `json:"listing_id"`
	Text        string           `json:"text"`
	Type        string           `json:"type"`
	OfferAmount *decimal.Decimal `json:"offer_amount"`
}

type RespondOfferRequest struct {
	Status string `json:"status"`
}

type MessageResponse struct {
	ID           uuid.UUID        `json:"id"`
	SenderID     uuid.UUID        `json:"sender_id"`
	SenderName   string           `json:"sender_name"`
	SenderEmail  string           `json:"sender_email"`
	ReceiverID   uuid.UUID        `json:"receiver_id"`
	ReceiverName string           `json:"receiver_name"`
	ListingID    *uuid.UUID       `json:"listing_id,omitempty"`
	ListingTitle string           `json:"listing_title,omitempty"`
	Text         string           `json:"text"`
	Type         string           `json:"type"`
	OfferAmount  *decimal.Decimal `json:"offer_amount,omitempty"`
	OfferStatus  string           `json:"offer_status,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

type OfferResponse struct {
	Message     string          `json:"message"`
	OfferStatus string          `json:"offer_status"`
	Reply       MessageResponse `json:"reply"`
}
