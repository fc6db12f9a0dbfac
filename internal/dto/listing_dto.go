package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateListingRequest is the typed command built from JSON or multipart input.
type CreateListingRequest struct {
	Title         string          `json:"title" form:"title"`
	Category      string          `json:"category" form:"category"`
	Price         decimal.Decimal `json:"price" form:"-"`
	Condition     string          `json:"condition" form:"condition"`
	Description   string          `json:"description" form:"description"`
	ContactMethod string          `json:"contact_method" form:"contact_method"`
	Quantity      int             `json:"quantity" form:"quantity"`
	Images        []string        `json:"images" form:"-"`
}

// UpdateListingRequest carries a partial update; nil fields are left unchanged.
type UpdateListingRequest struct {
	Title         *string          `json:"title"`
	Category      *string          `json:"category"`
	Price         *decimal.Decimal `json:"price"`
	Condition     *string          `json:"condition"`
	Description   *string          `json:"description"`
	ContactMethod *string          `json:"contact_method"`
	Quantity      *int             `json:"quantity"`
	Status        *string          `json:"status"`
	Images        []string         `json:"images"`
}

type ListingFilter struct {
	Category  string
	Condition string
	Query     string
	Status    string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Page      int
	Limit     int
}

type ListingResponse struct {
	ID            uuid.UUID       `json:"id"`
	Title         string          `json:"title"`
	Category      string          `json:"category"`
	Price         decimal.Decimal `json:"price"`
	Condition     string          `json:"condition"`
	Description   string          `json:"description"`
	ContactMethod string          `json:"contact_method,omitempty"`
	Quantity      int             `json:"quantity"`
	Status        string          `json:"status"`
	Images        []string        `json:"images"`
	Views         int             `json:"views"`
	Seller        SellerSummary   `json:"seller"`
	IsSaved       bool            `json:"is_saved"`
	IsOwner       bool            `json:"is_owner"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type ListingListResponse struct {
	Listings   []ListingResponse `json:"listings"`
	Pagination Pagination        `json:"pagination"`
}

type ListingDetailResponse struct {
	Listing ListingResponse   `json:"listing"`
	Similar []ListingResponse `json:"similar_items"`
}

type SaveToggleResponse struct {
	ListingID uuid.UUID `json:"listing_id"`
	Saved     bool      `json:"saved"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
	Conditions []string `json:"conditions"`
}
