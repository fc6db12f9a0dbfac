package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotListingOwner = apperr.Forbidden("only the seller can modify this listing")
	ErrSelfDelete      = apperr.InvalidOperation("admins cannot delete their own account")
)

// CascadeResult lists the cleanup steps that failed and were skipped.
type CascadeResult struct {
	FailedSteps []string
}

func (r *CascadeResult) Degraded() bool {
	return len(r.FailedSteps) > 0
}

// cascadeStep deletes one group of dependent rows. Steps whose table is
// missing from the schema are skipped.
type cascadeStep struct {
	name  string
	table string
	run   func(tx *gorm.DB) error
}

// CascadeService removes listings and users together with every row that
// references them, children first. Everything runs in one transaction; each
// cleanup step gets its own savepoint so a failing step is rolled back and
// logged without aborting the rest. Only the final root delete is fatal.
type CascadeService struct {
	db      *gorm.DB
	undoTTL time.Duration
	now     func() time.Time
}

func NewCascadeService(db *gorm.DB, undoTTL time.Duration) *CascadeService {
	return &CascadeService{db: db, undoTTL: undoTTL, now: time.Now}
}

// DeleteListing deletes a listing on behalf of its seller and keeps a
// restorable snapshot for the configured TTL.
func (s *CascadeService) DeleteListing(ctx context.Context, listingID, requesterID uuid.UUID) (*CascadeResult, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if listing.SellerID != requesterID {
		return nil, ErrNotListingOwner
	}
	return s.deleteListing(ctx, listing, true)
}

// DeleteListingAsAdmin deletes any listing. No undo snapshot is kept.
func (s *CascadeService) DeleteListingAsAdmin(ctx context.Context, listingID uuid.UUID) (*CascadeResult, error) {
	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return nil, err
	}
	return s.deleteListing(ctx, listing, false)
}

func (s *CascadeService) loadListing(ctx context.Context, listingID uuid.UUID) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.WithContext(ctx).First(&listing, "id = ?", listingID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrListingNotFound
		}
		return nil, apperr.Internal("failed to load listing", err)
	}
	return &listing, nil
}

func (s *CascadeService) deleteListing(ctx context.Context, listing *models.Listing, keepSnapshot bool) (*CascadeResult, error) {
	result := &CascadeResult{}
	id := listing.ID

	var steps []cascadeStep
	if keepSnapshot {
		steps = append(steps, cascadeStep{"snapshot", "deleted_listings", func(tx *gorm.DB) error {
			return s.writeSnapshot(tx, listing)
		}})
	}
	steps = append(steps,
		cascadeStep{"reviews", "reviews", func(tx *gorm.DB) error {
			return tx.Where("listing_id = ?", id).Delete(&models.Review{}).Error
		}},
		cascadeStep{"sold_items", "sold_items", func(tx *gorm.DB) error {
			return tx.Where("listing_id = ?", id).Delete(&models.SaleRecord{}).Error
		}},
		cascadeStep{"wishlist", "wishlist", func(tx *gorm.DB) error {
			return tx.Where("listing_id = ?", id).Delete(&models.WishlistEntry{}).Error
		}},
		cascadeStep{"messages", "messages", func(tx *gorm.DB) error {
			return tx.Where("listing_id = ?", id).Delete(&models.Message{}).Error
		}},
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		runSteps(tx, steps, result, "delete_listing", "listing_id", id.String())

		res := tx.Delete(&models.Listing{}, "id = ?", id)
		if res.Error != nil {
			return apperr.Internal("failed to delete listing", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrListingNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *CascadeService) writeSnapshot(tx *gorm.DB, listing *models.Listing) error {
	data, err := json.Marshal(listing)
	if err != nil {
		return err
	}
	now := s.now()
	return tx.Create(&models.DeletedListing{
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Snapshot:  data,
		DeletedAt: now,
		ExpiresAt: now.Add(s.undoTTL),
	}).Error
}

// DeleteUser removes a user and everything they own or appear in. The caller
// must already be authorized as an admin.
func (s *CascadeService) DeleteUser(ctx context.Context, userID, requesterID uuid.UUID) (*CascadeResult, error) {
	if userID == requesterID {
		return nil, ErrSelfDelete
	}

	var user models.User
	if err := s.db.WithContext(ctx).Select("id").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("failed to load user", err)
	}

	result := &CascadeResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := func() *gorm.DB {
			return tx.Model(&models.Listing{}).Select("id").Where("seller_id = ?", userID)
		}

		steps := []cascadeStep{
			{"listing_reviews", "reviews", func(tx *gorm.DB) error {
				return tx.Where("listing_id IN (?)", owned()).Delete(&models.Review{}).Error
			}},
			{"listing_sold_items", "sold_items", func(tx *gorm.DB) error {
				return tx.Where("listing_id IN (?)", owned()).Delete(&models.SaleRecord{}).Error
			}},
			{"listing_wishlist", "wishlist", func(tx *gorm.DB) error {
				return tx.Where("listing_id IN (?)", owned()).Delete(&models.WishlistEntry{}).Error
			}},
			{"listing_messages", "messages", func(tx *gorm.DB) error {
				return tx.Where("listing_id IN (?)", owned()).Delete(&models.Message{}).Error
			}},
			{"listings", "listings", func(tx *gorm.DB) error {
				return tx.Where("seller_id = ?", userID).Delete(&models.Listing{}).Error
			}},
			{"reviews", "reviews", func(tx *gorm.DB) error {
				return tx.Where("seller_id = ? OR buyer_id = ?", userID, userID).Delete(&models.Review{}).Error
			}},
			{"sold_items", "sold_items", func(tx *gorm.DB) error {
				return tx.Where("seller_id = ? OR buyer_id = ?", userID, userID).Delete(&models.SaleRecord{}).Error
			}},
			{"wishlist", "wishlist", func(tx *gorm.DB) error {
				return tx.Where("user_id = ?", userID).Delete(&models.WishlistEntry{}).Error
			}},
			{"messages", "messages", func(tx *gorm.DB) error {
				return tx.Where("sender_id = ? OR receiver_id = ?", userID, userID).Delete(&models.Message{}).Error
			}},
			{"refresh_tokens", "refresh_tokens", func(tx *gorm.DB) error {
				return tx.Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error
			}},
			{"user_tokens", "user_tokens", func(tx *gorm.DB) error {
				return tx.Where("user_id = ?", userID).Delete(&models.UserToken{}).Error
			}},
			{"deleted_listings", "deleted_listings", func(tx *gorm.DB) error {
				return tx.Where("seller_id = ?", userID).Delete(&models.DeletedListing{}).Error
			}},
		}
		runSteps(tx, steps, result, "delete_user", "user_id", userID.String())

		res := tx.Delete(&models.User{}, "id = ?", userID)
		if res.Error != nil {
			return apperr.Internal("failed to delete user", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func runSteps(tx *gorm.DB, steps []cascadeStep, result *CascadeResult, action, idKey, id string) {
	for i, step := range steps {
		if !tx.Migrator().HasTable(step.table) {
			slog.Debug("cascade step skipped, table missing", "action", action, "step", step.name, idKey, id)
			continue
		}

		sp := fmt.Sprintf("cascade_%d", i)
		if err := tx.SavePoint(sp).Error; err != nil {
			result.FailedSteps = append(result.FailedSteps, step.name)
			slog.Warn("cascade savepoint failed", "action", action, "step", step.name, idKey, id, "error", err)
			continue
		}
		if err := step.run(tx); err != nil {
			tx.RollbackTo(sp)
			result.FailedSteps = append(result.FailedSteps, step.name)
			slog.Warn("cascade step failed", "action", action, "step", step.name, idKey, id, "error", err)
		}
	}
}
