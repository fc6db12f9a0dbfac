package dto

import (
	"time"

	"github.com/google/uuid"
)

type SubmitReviewRequest struct {
	SellerID  uuid.UUID `json:"seller_id"`
	ListingID uuid.UUID `json:"listing_id"`
	Rating    int       `json:"rating"`
	Text      string    `json:"text"`
}

type ReviewResponse struct {
	ID           uuid.UUID  `json:"id"`
	SellerID     uuid.UUID  `json:"seller_id"`
	BuyerID      uuid.UUID  `json:"buyer_id"`
	BuyerName    string     `json:"buyer_name"`
	ListingID    *uuid.UUID `json:"listing_id,omitempty"`
	ListingTitle string     `json:"listing_title,omitempty"`
	Rating       int        `json:"rating"`
	Text         string     `json:"text"`
	CreatedAt    time.Time  `json:"created_at"`
}

type SellerReviewsResponse struct {
	Reviews       []ReviewResponse `json:"reviews"`
	AverageRating float64          `json:"average_rating"`
	TotalReviews  int              `json:"total_reviews"`
}
