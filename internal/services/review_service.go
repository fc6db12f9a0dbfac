package services

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNoPurchaseProof  = apperr.Unauthorized("you may only review sellers you purchased from")
	ErrInvalidRating    = apperr.InvalidArgument("rating must be an integer between 1 and 5")
	ErrAlreadyReviewed  = apperr.Conflict("you have already reviewed this purchase")
	ErrReviewTextTooBig = apperr.InvalidArgument("review text must be at most 1000 characters")
)

const maxReviewLength = 1000

type ReviewService struct {
	db  *gorm.DB
	mod *ModerationService
}

func NewReviewService(db *gorm.DB, mod *ModerationService) *ReviewService {
	return &ReviewService{db: db, mod: mod}
}

// Submit records a review after checking, in order: proof of purchase for
// the exact (buyer, seller, listing) triple, rating range, and that the
// triple has not been reviewed before.
func (s *ReviewService) Submit(ctx context.Context, buyerID uuid.UUID, req *dto.SubmitReviewRequest) (uuid.UUID, error) {
	var review models.Review

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sales int64
		if err := tx.Model(&models.SaleRecord{}).
			Where("buyer_id = ? AND seller_id = ? AND listing_id = ?", buyerID, req.SellerID, req.ListingID).
			Count(&sales).Error; err != nil {
			return apperr.Internal("failed to check purchase", err)
		}
		if sales == 0 {
			return ErrNoPurchaseProof
		}

		if req.Rating < 1 || req.Rating > 5 {
			return ErrInvalidRating
		}

		var existing int64
		if err := tx.Model(&models.Review{}).
			Where("buyer_id = ? AND seller_id = ? AND listing_id = ?", buyerID, req.SellerID, req.ListingID).
			Count(&existing).Error; err != nil {
			return apperr.Internal("failed to check reviews", err)
		}
		if existing > 0 {
			return ErrAlreadyReviewed
		}

		text := strings.TrimSpace(req.Text)
		if len(text) > maxReviewLength {
			return ErrReviewTextTooBig
		}
		if s.mod != nil {
			if ok, reason := s.mod.FilterContent(text); !ok {
				return apperr.InvalidArgument(s.mod.GetRejectionMessage(reason))
			}
		}

		listingID := req.ListingID
		review = models.Review{
			SellerID:  req.SellerID,
			BuyerID:   buyerID,
			ListingID: &listingID,
			Rating:    req.Rating,
			Text:      text,
		}
		if err := tx.Create(&review).Error; err != nil {
			// The unique index catches a concurrent duplicate.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrAlreadyReviewed
			}
			return apperr.Internal("failed to create review", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return review.ID, nil
}

// SellerReviews returns every review of a seller, newest first, with the mean
// rating rounded to one decimal (0 when there are none).
func (s *ReviewService) SellerReviews(ctx context.Context, sellerID uuid.UUID) (*dto.SellerReviewsResponse, error) {
	var reviews []models.Review
	if err := s.db.WithContext(ctx).Preload("Buyer").Preload("Listing").
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&reviews).Error; err != nil {
		return nil, apperr.Internal("failed to load reviews", err)
	}

	resp := &dto.SellerReviewsResponse{
		Reviews:      make([]dto.ReviewResponse, len(reviews)),
		TotalReviews: len(reviews),
	}
	sum := 0
	for i := range reviews {
		r := &reviews[i]
		sum += r.Rating
		resp.Reviews[i] = dto.ReviewResponse{
			ID:        r.ID,
			SellerID:  r.SellerID,
			BuyerID:   r.BuyerID,
			ListingID: r.ListingID,
			Rating:    r.Rating,
			Text:      r.Text,
			CreatedAt: r.CreatedAt,
		}
		if r.Buyer != nil {
			resp.Reviews[i].BuyerName = r.Buyer.FullName
		}
		if r.Listing != nil {
			resp.Reviews[i].ListingTitle = r.Listing.Title
		}
	}
	resp.AverageRating = averageRating(sum, len(reviews))
	return resp, nil
}

func averageRating(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}
