package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/realtime"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrMessageNotFound   = apperr.NotFound("message not found")
	ErrMessageForbidden  = apperr.Forbidden("you are not part of this conversation")
	ErrMessageToSelf     = apperr.InvalidArgument("you cannot message yourself")
	ErrReceiverNotFound  = apperr.NotFound("receiver not found")
	ErrEmptyMessage      = apperr.InvalidArgument("receiver_id and text are required")
	ErrInappropriateChat = apperr.InvalidArgument("message contains inappropriate language")
	ErrMessageType       = apperr.InvalidArgument("type must be text or offer")
	ErrOfferListing      = apperr.InvalidArgument("an offer must reference a listing")
	ErrOfferAmount       = apperr.InvalidArgument("offer_amount must be greater than zero")
	ErrOfferReceiver     = apperr.InvalidArgument("an offer must be sent to the listing's seller")
	ErrOfferClosed       = apperr.InvalidOperation("listing is not open for offers")
	ErrOfferStatus       = apperr.InvalidArgument("offer status must be accepted or rejected")
	ErrOfferNotFound     = apperr.NotFound("offer message not found")
	ErrOfferNotSeller    = apperr.Forbidden("only the seller can respond to offers")
	ErrOfferAnswered     = apperr.InvalidOperation("offer has already been answered")
)

const maxMessageLength = 2000

type MessageService struct {
	db  *gorm.DB
	mod *ModerationService
	pub Publisher
}

func NewMessageService(db *gorm.DB, mod *ModerationService, pub Publisher) *MessageService {
	return &MessageService{db: db, mod: mod, pub: pub}
}

// Send delivers a text message or, for type "offer", a pending price offer
// addressed to the seller of an available listing.
func (s *MessageService) Send(ctx context.Context, senderID uuid.UUID, req *dto.SendMessageRequest) (*dto.MessageResponse, error) {
	msgType := req.Type
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if msgType != models.MessageTypeText && msgType != models.MessageTypeOffer {
		return nil, ErrMessageType
	}
	isOffer := msgType == models.MessageTypeOffer

	text := strings.TrimSpace(req.Text)
	if req.ReceiverID == uuid.Nil || (text == "" && !isOffer) {
		return nil, ErrEmptyMessage
	}
	if isOffer {
		if req.ListingID == nil {
			return nil, ErrOfferListing
		}
		if req.OfferAmount == nil || !req.OfferAmount.IsPositive() {
			return nil, ErrOfferAmount
		}
	}
	if len(text) > maxMessageLength {
		return nil, apperr.InvalidArgument("message must be at most 2000 characters")
	}
	if req.ReceiverID == senderID {
		return nil, ErrMessageToSelf
	}
	if s.mod != nil && s.mod.ContainsProfanity(text) {
		return nil, ErrInappropriateChat
	}

	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.User{}).Where("id = ?", req.ReceiverID).Count(&n).Error; err != nil {
		return nil, apperr.Internal("failed to load receiver", err)
	}
	if n == 0 {
		return nil, ErrReceiverNotFound
	}
	var listing models.Listing
	if req.ListingID != nil {
		if err := db.Select("id", "seller_id", "title", "status").
			First(&listing, "id = ?", *req.ListingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrListingNotFound
			}
			return nil, apperr.Internal("failed to load listing", err)
		}
	}

	msg := models.Message{
		SenderID:   senderID,
		ReceiverID: req.ReceiverID,
		ListingID:  req.ListingID,
		Text:       text,
		Type:       msgType,
	}
	if isOffer {
		if listing.SellerID != req.ReceiverID {
			return nil, ErrOfferReceiver
		}
		if listing.Status != models.StatusAvailable {
			return nil, ErrOfferClosed
		}
		amount := req.OfferAmount.Round(2)
		msg.OfferAmount = decimal.NewNullDecimal(amount)
		msg.OfferStatus = models.OfferPending
		if msg.Text == "" {
			msg.Text = fmt.Sprintf("I'd like to offer ₹%s for %q.", amount.String(), listing.Title)
		}
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, apperr.Internal("failed to send message", err)
	}

	resp, err := s.load(ctx, msg.ID)
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.Publish(msg.ReceiverID, realtime.EventMessage, resp)
	}
	return resp, nil
}

// RespondOffer lets the listing's seller accept or reject a pending offer.
// The answer is recorded on the offer and a reply message is sent to the
// buyer in the same transaction.
func (s *MessageService) RespondOffer(ctx context.Context, messageID, userID uuid.UUID, status string) (*dto.OfferResponse, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if status != models.OfferAccepted && status != models.OfferRejected {
		return nil, ErrOfferStatus
	}

	var reply models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var offer models.Message
		if err := tx.Preload("Listing").First(&offer, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOfferNotFound
			}
			return apperr.Internal("failed to load offer", err)
		}
		if offer.Type != models.MessageTypeOffer || offer.Listing == nil || !offer.OfferAmount.Valid {
			return ErrOfferNotFound
		}
		if offer.Listing.SellerID != userID {
			return ErrOfferNotSeller
		}
		if offer.OfferStatus != models.OfferPending {
			return ErrOfferAnswered
		}

		res := tx.Model(&models.Message{}).
			Where("id = ? AND offer_status = ?", offer.ID, models.OfferPending).
			Update("offer_status", status)
		if res.Error != nil {
			return apperr.Internal("failed to update offer", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrOfferAnswered
		}

		reply = models.Message{
			SenderID:   userID,
			ReceiverID: offer.SenderID,
			ListingID:  offer.ListingID,
			Text:       offerReplyText(status, offer.OfferAmount.Decimal),
		}
		if err := tx.Create(&reply).Error; err != nil {
			return apperr.Internal("failed to send offer reply", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp, err := s.load(ctx, reply.ID)
	if err != nil {
		return nil, err
	}
	if s.pub != nil {
		s.pub.Publish(reply.ReceiverID, realtime.EventMessage, resp)
	}
	return &dto.OfferResponse{
		Message:     fmt.Sprintf("Offer %s successfully", status),
		OfferStatus: status,
		Reply:       *resp,
	}, nil
}

func offerReplyText(status string, amount decimal.Decimal) string {
	if status == models.OfferAccepted {
		return fmt.Sprintf("I accept your offer of ₹%s!", amount.String())
	}
	return fmt.Sprintf("Thank you for your offer, but I cannot accept ₹%s at this time.", amount.String())
}

func (s *MessageService) Inbox(ctx context.Context, userID uuid.UUID) ([]dto.MessageResponse, error) {
	return s.list(s.db.WithContext(ctx).Where("receiver_id = ?", userID))
}

func (s *MessageService) Sent(ctx context.Context, userID uuid.UUID) ([]dto.MessageResponse, error) {
	return s.list(s.db.WithContext(ctx).Where("sender_id = ?", userID))
}

// Get returns a message to its sender or receiver.
func (s *MessageService) Get(ctx context.Context, id, userID uuid.UUID) (*dto.MessageResponse, error) {
	resp, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if resp.SenderID != userID && resp.ReceiverID != userID {
		return nil, ErrMessageForbidden
	}
	return resp, nil
}

func (s *MessageService) All(ctx context.Context, page, limit int) ([]dto.MessageResponse, dto.Pagination, error) {
	page, limit = normalizePage(page, limit)
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Message{}).Count(&total).Error; err != nil {
		return nil, dto.Pagination{}, apperr.Internal("failed to count messages", err)
	}
	msgs, err := s.list(s.db.WithContext(ctx).Limit(limit).Offset((page - 1) * limit))
	if err != nil {
		return nil, dto.Pagination{}, err
	}
	return msgs, dto.NewPagination(page, limit, total), nil
}

func (s *MessageService) Delete(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Message{}, "id = ?", id)
	if res.Error != nil {
		return apperr.Internal("failed to delete message", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

func (s *MessageService) load(ctx context.Context, id uuid.UUID) (*dto.MessageResponse, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).Preload("Sender").Preload("Receiver").Preload("Listing").
		First(&msg, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, apperr.Internal("failed to load message", err)
	}
	resp := toMessageResponse(&msg)
	return &resp, nil
}

func (s *MessageService) list(q *gorm.DB) ([]dto.MessageResponse, error) {
	var msgs []models.Message
	if err := q.Preload("Sender").Preload("Receiver").Preload("Listing").
		Order("created_at DESC").Find(&msgs).Error; err != nil {
		return nil, apperr.Internal("failed to load messages", err)
	}
	out := make([]dto.MessageResponse, len(msgs))
	for i := range msgs {
		out[i] = toMessageResponse(&msgs[i])
	}
	return out, nil
}

func toMessageResponse(m *models.Message) dto.MessageResponse {
	resp := dto.MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		ListingID:   m.ListingID,
		Text:        m.Text,
		Type:        m.Type,
		OfferStatus: m.OfferStatus,
		CreatedAt:   m.CreatedAt,
	}
	if m.OfferAmount.Valid {
		amount := m.OfferAmount.Decimal
		resp.OfferAmount = &amount
	}
	if m.Sender != nil {
		resp.SenderName = m.Sender.FullName
		resp.SenderEmail = m.Sender.Email
	}
	if m.Receiver != nil {
		resp.ReceiverName = m.Receiver.FullName
	}
	if m.Listing != nil {
		resp.ListingTitle = m.Listing.Title
	}
	return resp
}
