package services

import (
	"context"
	"strings"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrInvalidRole = apperr.InvalidArgument("role must be student or admin")

type AdminService struct {
	db       *gorm.DB
	listings *ListingService
}

func NewAdminService(db *gorm.DB, listings *ListingService) *AdminService {
	return &AdminService{db: db, listings: listings}
}

func (s *AdminService) Stats(ctx context.Context) (*dto.AdminStatsResponse, error) {
	db := s.db.WithContext(ctx)
	var stats dto.AdminStatsResponse
	counts := []struct {
		dst   *int64
		model interface{}
		where string
		args  []interface{}
	}{
		{&stats.TotalUsers, &models.User{}, "", nil},
		{&stats.TotalListings, &models.Listing{}, "", nil},
		{&stats.AvailableListings, &models.Listing{}, "status = ?", []interface{}{models.StatusAvailable}},
		{&stats.SoldListings, &models.Listing{}, "status = ?", []interface{}{models.StatusSold}},
		{&stats.TotalSales, &models.SaleRecord{}, "", nil},
		{&stats.TotalMessages, &models.Message{}, "", nil},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dst).Error; err != nil {
			return nil, apperr.Internal("failed to compute stats", err)
		}
	}
	return &stats, nil
}

func (s *AdminService) Users(ctx context.Context, search string, page, limit int) ([]dto.UserResponse, dto.Pagination, error) {
	page, limit = normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.User{})
	if term := strings.TrimSpace(search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("(LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?)", like, like)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, dto.Pagination{}, apperr.Internal("failed to count users", err)
	}
	var users []models.User
	if err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error; err != nil {
		return nil, dto.Pagination{}, apperr.Internal("failed to load users", err)
	}

	out := make([]dto.UserResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	return out, dto.NewPagination(page, limit, total), nil
}

func (s *AdminService) UpdateRole(ctx context.Context, userID, requesterID uuid.UUID, role string) (*dto.UserResponse, error) {
	if role != models.RoleStudent && role != models.RoleAdmin {
		return nil, ErrInvalidRole
	}
	if userID == requesterID && role != models.RoleAdmin {
		return nil, apperr.InvalidOperation("admins cannot demote themselves")
	}

	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("role", role)
	if res.Error != nil {
		return nil, apperr.Internal("failed to update role", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, apperr.Internal("failed to load user", err)
	}
	resp := toUserResponse(&user)
	return &resp, nil
}

// Listings returns every listing including hidden ones.
func (s *AdminService) Listings(ctx context.Context, status string, page, limit int) (*dto.ListingListResponse, error) {
	page, limit = normalizePage(page, limit)
	q := s.db.WithContext(ctx).Model(&models.Listing{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, apperr.Internal("failed to count listings", err)
	}
	var listings []models.Listing
	if err := q.Preload("Seller").Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&listings).Error; err != nil {
		return nil, apperr.Internal("failed to load listings", err)
	}

	return &dto.ListingListResponse{
		Listings:   s.listings.toResponses(ctx, listings, uuid.Nil),
		Pagination: dto.NewPagination(page, limit, total),
	}, nil
}
