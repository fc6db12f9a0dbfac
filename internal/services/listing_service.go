package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	similarItems    = 4
	maxTitleLength  = 100
)

var (
	ErrNothingToRestore  = apperr.NotFound("no recently deleted listing to restore")
	ErrListingConflict   = apperr.Conflict("listing was modified concurrently, please retry")
	ErrSoldWithStock     = apperr.InvalidArgument("a listing with remaining quantity cannot be marked Sold")
	ErrInappropriateText = apperr.InvalidArgument("listing contains inappropriate language")
)

type ListingService struct {
	db        *gorm.DB
	mod       *ModerationService
	maxImages int
}

func NewListingService(db *gorm.DB, mod *ModerationService, maxImages int) *ListingService {
	return &ListingService{db: db, mod: mod, maxImages: maxImages}
}

func (s *ListingService) Create(ctx context.Context, sellerID uuid.UUID, req *dto.CreateListingRequest) (*dto.ListingResponse, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" || strings.TrimSpace(req.Category) == "" {
		return nil, apperr.InvalidArgument("title and category are required")
	}
	if len(title) > maxTitleLength {
		return nil, apperr.InvalidArgument("title must be at most 100 characters")
	}
	if !contains(models.Categories, req.Category) {
		return nil, apperr.InvalidArgument("unknown category")
	}
	if req.Condition != "" && !contains(models.Conditions, req.Condition) {
		return nil, apperr.InvalidArgument("unknown condition")
	}
	if req.Price.IsNegative() {
		return nil, apperr.InvalidArgument("price must not be negative")
	}
	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 0 {
		return nil, apperr.InvalidArgument("quantity must be at least 1")
	}
	if len(req.Images) > s.maxImages {
		return nil, apperr.InvalidArgument("too many images")
	}
	if s.mod != nil && (s.mod.ContainsProfanity(title) || s.mod.ContainsProfanity(req.Description)) {
		return nil, ErrInappropriateText
	}

	listing := models.Listing{
		SellerID:      sellerID,
		Title:         title,
		Category:      req.Category,
		Price:         req.Price.Round(2),
		Condition:     req.Condition,
		Description:   strings.TrimSpace(req.Description),
		ContactMethod: strings.TrimSpace(req.ContactMethod),
		Quantity:      quantity,
		Status:        models.StatusAvailable,
		Images:        nonNilStrings(req.Images),
	}
	if err := s.db.WithContext(ctx).Create(&listing).Error; err != nil {
		return nil, apperr.Internal("failed to create listing", err)
	}

	return s.load(ctx, listing.ID, sellerID)
}

// Query lists listings newest first. Hidden listings are excluded unless
// the status filter asks for them.
func (s *ListingService) Query(ctx context.Context, f dto.ListingFilter, viewerID uuid.UUID) (*dto.ListingListResponse, error) {
	page, limit := normalizePage(f.Page, f.Limit)

	q := s.db.WithContext(ctx).Model(&models.Listing{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	} else {
		q = q.Where("status <> ?", models.StatusHidden)
	}
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Condition != "" {
		q = q.Where("condition = ?", f.Condition)
	}
	if term := strings.TrimSpace(f.Query); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(category) LIKE ?)", like, like, like)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Internal("failed to count listings", err)
	}

	var listings []models.Listing
	if err := q.Preload("Seller").
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&listings).Error; err != nil {
		return nil, apperr.Internal("failed to query listings", err)
	}

	return &dto.ListingListResponse{
		Listings:   s.toResponses(ctx, listings, viewerID),
		Pagination: dto.NewPagination(page, limit, total),
	}, nil
}

// Get returns a listing with similar items and counts the view unless the
// viewer is the seller.
func (s *ListingService) Get(ctx context.Context, id, viewerID uuid.UUID) (*dto.ListingDetailResponse, error) {
	var listing models.Listing
	if err := s.db.WithContext(ctx).Preload("Seller").First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, apperr.Internal("failed to load listing", err)
	}
	if listing.Status == models.StatusHidden && listing.SellerID != viewerID {
		return nil, ErrListingNotFound
	}

	if listing.SellerID != viewerID {
		if err := s.db.WithContext(ctx).Model(&models.Listing{}).Where("id = ?", id).
			UpdateColumn("views", gorm.Expr("views + 1")).Error; err == nil {
			listing.Views++
		}
	}

	var similar []models.Listing
	if err := s.db.WithContext(ctx).Preload("Seller").
		Where("category = ? AND status = ? AND id <> ?", listing.Category, models.StatusAvailable, listing.ID).
		Order("created_at DESC").
		Limit(similarItems).
		Find(&similar).Error; err != nil {
		return nil, apperr.Internal("failed to load similar listings", err)
	}

	all := s.toResponses(ctx, append([]models.Listing{listing}, similar...), viewerID)
	return &dto.ListingDetailResponse{Listing: all[0], Similar: all[1:]}, nil
}

// Update applies a partial update by the seller. Quantity 0 forces status
// Sold, and Sold is refused while stock remains.
func (s *ListingService) Update(ctx context.Context, id, userID uuid.UUID, req *dto.UpdateListingRequest) (*dto.ListingResponse, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Listing
		if err := tx.First(&current, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return apperr.Internal("failed to load listing", err)
		}
		if current.SellerID != userID {
			return ErrNotListingOwner
		}

		updates, err := s.buildUpdates(&current, req)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}

		// Guard against a booking that changed stock since the read above.
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND quantity = ? AND status = ?", id, current.Quantity, current.Status).
			Updates(updates)
		if res.Error != nil {
			return apperr.Internal("failed to update listing", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrListingConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id, userID)
}

func (s *ListingService) buildUpdates(current *models.Listing, req *dto.UpdateListingRequest) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > maxTitleLength {
			return nil, apperr.InvalidArgument("title must be 1-100 characters")
		}
		if s.mod != nil && s.mod.ContainsProfanity(title) {
			return nil, ErrInappropriateText
		}
		updates["title"] = title
	}
	if req.Category != nil {
		if !contains(models.Categories, *req.Category) {
			return nil, apperr.InvalidArgument("unknown category")
		}
		updates["category"] = *req.Category
	}
	if req.Condition != nil {
		if *req.Condition != "" && !contains(models.Conditions, *req.Condition) {
			return nil, apperr.InvalidArgument("unknown condition")
		}
		updates["condition"] = *req.Condition
	}
	if req.Price != nil {
		if req.Price.IsNegative() {
			return nil, apperr.InvalidArgument("price must not be negative")
		}
		updates["price"] = req.Price.Round(2)
	}
	if req.Description != nil {
		if s.mod != nil && s.mod.ContainsProfanity(*req.Description) {
			return nil, ErrInappropriateText
		}
		updates["description"] = strings.TrimSpace(*req.Description)
	}
	if req.ContactMethod != nil {
		updates["contact_method"] = strings.TrimSpace(*req.ContactMethod)
	}
	if req.Images != nil {
		if len(req.Images) > s.maxImages {
			return nil, apperr.InvalidArgument("too many images")
		}
		updates["images"] = datatypes.JSONSlice[string](req.Images)
	}

	quantity := current.Quantity
	if req.Quantity != nil {
		if *req.Quantity < 0 {
			return nil, apperr.InvalidArgument("quantity must not be negative")
		}
		quantity = *req.Quantity
		updates["quantity"] = quantity
	}

	status := current.Status
	if req.Status != nil {
		if !models.ValidStatuses[*req.Status] {
			return nil, apperr.InvalidArgument("unknown status")
		}
		status = *req.Status
	} else if current.IsSold() && quantity > 0 {
		status = models.StatusAvailable
	}

	switch {
	case quantity <= 0:
		status = models.StatusSold
	case status == models.StatusSold:
		return nil, ErrSoldWithStock
	}
	if status != current.Status {
		updates["status"] = status
	}
	return updates, nil
}

func (s *ListingService) Mine(ctx context.Context, sellerID uuid.UUID, status string) ([]dto.ListingResponse, error) {
	q := s.db.WithContext(ctx).Preload("Seller").Where("seller_id = ?", sellerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var listings []models.Listing
	if err := q.Order("created_at DESC").Find(&listings).Error; err != nil {
		return nil, apperr.Internal("failed to load listings", err)
	}
	return s.toResponses(ctx, listings, sellerID), nil
}

// ToggleSave adds the listing to the user's wishlist, or removes it if it
// is already there.
func (s *ListingService) ToggleSave(ctx context.Context, userID, listingID uuid.UUID) (*dto.SaveToggleResponse, error) {
	resp := &dto.SaveToggleResponse{ListingID: listingID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Listing{}).Where("id = ?", listingID).Count(&n).Error; err != nil {
			return apperr.Internal("failed to load listing", err)
		}
		if n == 0 {
			return ErrListingNotFound
		}

		res := tx.Where("user_id = ? AND listing_id = ?", userID, listingID).Delete(&models.WishlistEntry{})
		if res.Error != nil {
			return apperr.Internal("failed to update wishlist", res.Error)
		}
		if res.RowsAffected > 0 {
			resp.Saved = false
			return nil
		}

		if err := tx.Create(&models.WishlistEntry{UserID: userID, ListingID: listingID}).Error; err != nil {
			return apperr.Internal("failed to update wishlist", err)
		}
		resp.Saved = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *ListingService) Wishlist(ctx context.Context, userID uuid.UUID) ([]dto.ListingResponse, error) {
	var listings []models.Listing
	err := s.db.WithContext(ctx).Preload("Seller").
		Joins("JOIN wishlist ON wishlist.listing_id = listings.id").
		Where("wishlist.user_id = ?", userID).
		Order("wishlist.created_at DESC").
		Find(&listings).Error
	if err != nil {
		return nil, apperr.Internal("failed to load wishlist", err)
	}
	return s.toResponses(ctx, listings, userID), nil
}

// Restore re-inserts the seller's most recently deleted listing that has not
// expired yet. Repeated calls walk back through older deletions.
func (s *ListingService) Restore(ctx context.Context, sellerID uuid.UUID) (*dto.ListingResponse, error) {
	var restored models.Listing

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snap models.DeletedListing
		err := tx.Where("seller_id = ? AND expires_at > ?", sellerID, time.Now()).
			Order("deleted_at DESC").
			First(&snap).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNothingToRestore
			}
			return apperr.Internal("failed to load deleted listing", err)
		}

		if err := json.Unmarshal(snap.Snapshot, &restored); err != nil {
			return apperr.Internal("corrupt listing snapshot", err)
		}
		restored.Seller = nil
		if restored.ID == uuid.Nil || restored.SellerID != sellerID {
			return apperr.Internal("corrupt listing snapshot", nil)
		}

		if err := tx.Create(&restored).Error; err != nil {
			return apperr.Internal("failed to restore listing", err)
		}
		return tx.Delete(&snap).Error
	})
	if err != nil {
		return nil, err
	}
	return s.load(ctx, restored.ID, sellerID)
}

func (s *ListingService) Categories() dto.CategoriesResponse {
	return dto.CategoriesResponse{Categories: models.Categories, Conditions: models.Conditions}
}

func (s *ListingService) load(ctx context.Context, id, viewerID uuid.UUID) (*dto.ListingResponse, error) {
	var listing models.Listing
	if err := s.db.WithContext(ctx).Preload("Seller").First(&listing, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, apperr.Internal("failed to load listing", err)
	}
	resp := s.toResponses(ctx, []models.Listing{listing}, viewerID)[0]
	return &resp, nil
}

func (s *ListingService) toResponses(ctx context.Context, listings []models.Listing, viewerID uuid.UUID) []dto.ListingResponse {
	saved := map[uuid.UUID]bool{}
	if viewerID != uuid.Nil && len(listings) > 0 {
		ids := make([]uuid.UUID, len(listings))
		for i := range listings {
			ids[i] = listings[i].ID
		}
		var entries []models.WishlistEntry
		if err := s.db.WithContext(ctx).Select("listing_id").
			Where("user_id = ? AND listing_id IN ?", viewerID, ids).
			Find(&entries).Error; err != nil {
			slog.Warn("failed to load saved listings", "user_id", viewerID.String(), "error", err)
		}
		for _, e := range entries {
			saved[e.ListingID] = true
		}
	}

	out := make([]dto.ListingResponse, len(listings))
	for i := range listings {
		out[i] = toListingResponse(&listings[i], viewerID, saved[listings[i].ID])
	}
	return out
}

func toListingResponse(l *models.Listing, viewerID uuid.UUID, saved bool) dto.ListingResponse {
	resp := dto.ListingResponse{
		ID:            l.ID,
		Title:         l.Title,
		Category:      l.Category,
		Price:         l.Price,
		Condition:     l.Condition,
		Description:   l.Description,
		ContactMethod: l.ContactMethod,
		Quantity:      l.Quantity,
		Status:        l.Status,
		Images:        nonNilStrings(l.Images),
		Views:         l.Views,
		Seller:        dto.SellerSummary{ID: l.SellerID},
		IsSaved:       saved,
		IsOwner:       viewerID != uuid.Nil && viewerID == l.SellerID,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.Seller != nil {
		resp.Seller.FullName = l.Seller.FullName
		resp.Seller.Avatar = l.Seller.Avatar
	}
	return resp
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func contains(list []string, val string) bool {
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

// ParsePrice accepts a decimal string; empty input yields nil.
func ParsePrice(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, apperr.InvalidArgument("price must be a number")
	}
	return &d, nil
}
