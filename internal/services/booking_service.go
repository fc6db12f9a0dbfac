package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/notify"
	"github.com/campx/campx-backend/internal/realtime"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrListingNotFound = apperr.NotFound("listing not found")
	ErrAlreadySold     = apperr.New(apperr.KindAlreadySold, "listing is already sold")
	ErrSelfBooking     = apperr.InvalidOperation("sellers cannot book their own listing")
)

// BookingNotifier delivers the out-of-band seller notification.
type BookingNotifier interface {
	NotifyBooking(ctx context.Context, n notify.BookingNotice) notify.Result
}

// Publisher pushes realtime events to a user's open connections.
type Publisher interface {
	Publish(userID uuid.UUID, eventType string, data interface{})
}

type BookingService struct {
	db       *gorm.DB
	notifier BookingNotifier
	pub      Publisher
}

func NewBookingService(db *gorm.DB, notifier BookingNotifier, pub Publisher) *BookingService {
	return &BookingService{db: db, notifier: notifier, pub: pub}
}

type bookingOutcome struct {
	sale      models.SaleRecord
	message   models.Message
	remaining int
	status    string
	notice    notify.BookingNotice
}

// Book sells one unit of a listing to buyerID. The decrement, sale record and
// notification message commit together or not at all; the email and SMS are
// attempted after commit and only affect the response flags.
func (s *BookingService) Book(ctx context.Context, listingID, buyerID uuid.UUID) (*dto.BookingResponse, error) {
	var out bookingOutcome

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var listing models.Listing
		if err := tx.First(&listing, "id = ?", listingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrListingNotFound
			}
			return apperr.Internal("failed to load listing", err)
		}
		if listing.IsSold() {
			return ErrAlreadySold
		}
		if listing.SellerID == buyerID {
			return ErrSelfBooking
		}

		var buyer, seller models.User
		if err := tx.First(&buyer, "id = ?", buyerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return apperr.Internal("failed to load buyer", err)
		}
		if err := tx.First(&seller, "id = ?", listing.SellerID).Error; err != nil {
			return apperr.Internal("failed to load seller", err)
		}

		// The WHERE clause re-checks availability at write time, so of two
		// concurrent bookings for the last unit only one updates a row.
		res := tx.Model(&models.Listing{}).
			Where("id = ? AND status <> ? AND quantity > 0", listing.ID, models.StatusSold).
			Updates(map[string]interface{}{
				"quantity": gorm.Expr("quantity - 1"),
				"status":   gorm.Expr("CASE WHEN quantity <= 1 THEN ? ELSE status END", models.StatusSold),
			})
		if res.Error != nil {
			return apperr.Internal("failed to update inventory", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadySold
		}

		var updated models.Listing
		if err := tx.Select("quantity", "status").First(&updated, "id = ?", listing.ID).Error; err != nil {
			return apperr.Internal("failed to reload listing", err)
		}

		out.sale = models.SaleRecord{
			ListingID:     listing.ID,
			SellerID:      listing.SellerID,
			BuyerID:       buyerID,
			Title:         listing.Title,
			Category:      listing.Category,
			Price:         listing.Price,
			Condition:     listing.Condition,
			Description:   listing.Description,
			ContactMethod: listing.ContactMethod,
			Images:        listing.Images,
		}
		if err := tx.Create(&out.sale).Error; err != nil {
			return apperr.Internal("failed to record sale", err)
		}

		out.notice = notify.BookingNotice{
			ListingID:    listing.ID.String(),
			ListingTitle: listing.Title,
			SellerName:   seller.FullName,
			SellerEmail:  seller.Email,
			SellerPhone:  seller.Phone,
			BuyerName:    buyer.FullName,
			BuyerEmail:   buyer.Email,
			BuyerPhone:   buyer.Phone,
		}
		lid := listing.ID
		out.message = models.Message{
			SenderID:   buyerID,
			ReceiverID: listing.SellerID,
			ListingID:  &lid,
			Text:       notify.BookingText(out.notice),
		}
		if err := tx.Create(&out.message).Error; err != nil {
			return apperr.Internal("failed to create notification message", err)
		}

		out.remaining = updated.Quantity
		out.status = updated.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp := &dto.BookingResponse{
		Message:           fmt.Sprintf("You booked %q. The seller has been notified.", out.sale.Title),
		ListingID:         listingID,
		SaleID:            out.sale.ID,
		MessageID:         out.message.ID,
		SaleRecorded:      true,
		MessageCreated:    true,
		RemainingQuantity: out.remaining,
		Status:            out.status,
	}

	if s.notifier != nil {
		res := s.notifier.NotifyBooking(context.WithoutCancel(ctx), out.notice)
		resp.EmailSent = res.EmailSent
		resp.SMSSent = res.SMSSent
		resp.NotificationDegraded = res.Degraded
	}

	if s.pub != nil {
		s.pub.Publish(out.sale.SellerID, realtime.EventBooking, map[string]interface{}{
			"listing_id":         listingID,
			"sale_id":            out.sale.ID,
			"title":              out.sale.Title,
			"buyer_name":         out.notice.BuyerName,
			"remaining_quantity": out.remaining,
			"status":             out.status,
		})
		s.pub.Publish(out.sale.SellerID, realtime.EventMessage, toMessageResponse(&out.message))
	}

	return resp, nil
}

func (s *BookingService) Purchases(buyerID uuid.UUID) ([]dto.SaleResponse, error) {
	return s.listSales(s.db.Where("buyer_id = ?", buyerID))
}

func (s *BookingService) SoldBy(sellerID uuid.UUID) ([]dto.SaleResponse, error) {
	return s.listSales(s.db.Where("seller_id = ?", sellerID))
}

func (s *BookingService) AllSales(page, limit int) ([]dto.SaleResponse, dto.Pagination, error) {
	page, limit = normalizePage(page, limit)
	var total int64
	if err := s.db.Model(&models.SaleRecord{}).Count(&total).Error; err != nil {
		return nil, dto.Pagination{}, apperr.Internal("failed to count sales", err)
	}
	sales, err := s.listSales(s.db.Limit(limit).Offset((page - 1) * limit))
	if err != nil {
		return nil, dto.Pagination{}, err
	}
	return sales, dto.NewPagination(page, limit, total), nil
}

func (s *BookingService) listSales(q *gorm.DB) ([]dto.SaleResponse, error) {
	var records []models.SaleRecord
	if err := q.Preload("Seller").Preload("Buyer").Order("sold_at DESC").Find(&records).Error; err != nil {
		return nil, apperr.Internal("failed to load sales", err)
	}
	out := make([]dto.SaleResponse, len(records))
	for i := range records {
		out[i] = toSaleResponse(&records[i])
	}
	return out, nil
}

func toSaleResponse(r *models.SaleRecord) dto.SaleResponse {
	resp := dto.SaleResponse{
		ID:          r.ID,
		ListingID:   r.ListingID,
		SellerID:    r.SellerID,
		BuyerID:     r.BuyerID,
		Title:       r.Title,
		Category:    r.Category,
		Price:       r.Price,
		Condition:   r.Condition,
		Description: r.Description,
		Images:      []string(r.Images),
		SoldAt:      r.SoldAt,
	}
	if resp.Images == nil {
		resp.Images = []string{}
	}
	if r.Seller != nil {
		resp.SellerName = r.Seller.FullName
	}
	if r.Buyer != nil {
		resp.BuyerName = r.Buyer.FullName
	}
	return resp
}
