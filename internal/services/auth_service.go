package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/config"
	"github.com/campx/campx-backend/internal/dto"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/notify"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrEmailDomain        = apperr.InvalidArgument("registration is limited to campus email addresses")
	ErrWeakPassword       = apperr.InvalidArgument("password must be at least 8 characters")
	ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")
	ErrInvalidToken       = apperr.Unauthenticated("invalid or expired refresh token")
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrLinkTokenInvalid   = apperr.InvalidArgument("this link is invalid or has already been used")
	ErrLinkTokenExpired   = apperr.InvalidArgument("this link has expired, please request a new one")
	ErrAlreadyVerified    = apperr.InvalidOperation("email is already verified")
)

const (
	minPasswordLength = 8
	verifyTokenTTL    = 24 * time.Hour
	resetTokenTTL     = time.Hour
	accountMailWait   = 10 * time.Second
)

// ForgotPasswordMessage is returned whether or not the email is registered.
const ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent."

type AuthService struct {
	db     *gorm.DB
	cfg    *config.Config
	mailer notify.Mailer
	now    func() time.Time
}

// NewAuthService wires the account mailer. A nil mailer disables
// verification and reset emails; tokens are still issued.
func NewAuthService(db *gorm.DB, cfg *config.Config, mailer notify.Mailer) *AuthService {
	return &AuthService{db: db, cfg: cfg, mailer: mailer, now: time.Now}
}

func (s *AuthService) Register(req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := strings.TrimSpace(req.FullName)
	if name == "" || email == "" {
		return nil, apperr.InvalidArgument("full_name and email are required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.InvalidArgument("email is not valid")
	}
	if len(req.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if d := s.cfg.AllowedEmailDomain; d != "" && !strings.HasSuffix(email, "@"+d) {
		return nil, ErrEmailDomain
	}

	var existing int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, apperr.Internal("failed to check email", err)
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.User{
		FullName: name,
		Email:    email,
		Phone:    strings.TrimSpace(req.Phone),
		Password: string(hash),
		Role:     models.RoleStudent,
	}

	if err := s.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := s.sendVerification(context.Background(), &user); err != nil {
		slog.Warn("verification email not issued", "action", "verify_email", "user_id", user.ID.String(), "error", err)
	}

	return s.generateTokenPair(&user)
}

// VerifyEmail consumes a verification link token and marks the address
// verified.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.consumeLinkToken(tx, rawToken, models.TokenPurposeVerifyEmail)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", token.UserID).
			Update("email_verified", true).Error; err != nil {
			return apperr.Internal("failed to verify email", err)
		}
		return nil
	})
}

// ResendVerification replaces any outstanding verification link for email
// and mails a fresh one.
func (s *AuthService) ResendVerification(ctx context.Context, email string) (*dto.ResendVerificationResponse, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.InvalidArgument("email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if user.EmailVerified {
		return nil, ErrAlreadyVerified
	}

	sent, err := s.sendVerification(ctx, &user)
	if err != nil {
		return nil, err
	}
	if !sent {
		return &dto.ResendVerificationResponse{Message: "Verification link issued, but the email could not be delivered."}, nil
	}
	return &dto.ResendVerificationResponse{Message: "Verification email sent. Please check your inbox.", EmailSent: true}, nil
}

// ForgotPassword mails a one-hour reset link when email belongs to an
// account. Unknown addresses succeed silently.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.InvalidArgument("email is required")
	}

	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperr.Internal("failed to load user", err)
	}

	raw, err := s.issueLinkToken(s.db.WithContext(ctx), user.ID, models.TokenPurposeResetPassword, resetTokenTTL)
	if err != nil {
		return err
	}
	link := s.cfg.AppBaseURL + "/reset-password?token=" + url.QueryEscape(raw)
	s.deliver(ctx, &user, notify.PasswordResetSubject(), notify.PasswordResetText(user.FullName, link), "reset_password")
	return nil
}

// ResetPassword sets a new password from a reset link token. The token is
// single use and every refresh token of the account is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	if strings.TrimSpace(req.Token) == "" || req.NewPassword == "" {
		return apperr.InvalidArgument("token and new_password are required")
	}
	if len(req.NewPassword) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.consumeLinkToken(tx, req.Token, models.TokenPurposeResetPassword)
		if err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", token.UserID).
			Update("password", string(hash)).Error; err != nil {
			return apperr.Internal("failed to update password", err)
		}
		if err := tx.Model(&models.RefreshToken{}).
			Where("user_id = ? AND revoked = ?", token.UserID, false).
			Update("revoked", true).Error; err != nil {
			return apperr.Internal("failed to revoke sessions", err)
		}
		return nil
	})
}

// PublicProfile is the seller card shown to any visitor.
func (s *AuthService) PublicProfile(ctx context.Context, userID uuid.UUID) (*dto.PublicProfileResponse, error) {
	db := s.db.WithContext(ctx)

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("failed to load user", err)
	}

	var stats struct {
		Total     int64
		RatingSum int64
	}
	if err := db.Model(&models.Review{}).
		Select("COUNT(*) AS total, COALESCE(SUM(rating), 0) AS rating_sum").
		Where("seller_id = ?", userID).
		Scan(&stats).Error; err != nil {
		return nil, apperr.Internal("failed to load rating", err)
	}

	var active int64
	if err := db.Model(&models.Listing{}).
		Where("seller_id = ? AND status = ?", userID, models.StatusAvailable).
		Count(&active).Error; err != nil {
		return nil, apperr.Internal("failed to count listings", err)
	}

	return &dto.PublicProfileResponse{
		ID:             user.ID,
		FullName:       user.FullName,
		Email:          user.Email,
		Phone:          user.Phone,
		Avatar:         user.Avatar,
		EmailVerified:  user.EmailVerified,
		MemberSince:    user.CreatedAt,
		AverageRating:  averageRating(int(stats.RatingSum), int(stats.Total)),
		TotalReviews:   stats.Total,
		ActiveListings: active,
	}, nil
}

func (s *AuthService) Login(req *dto.LoginRequest) (*dto.AuthResponse, error) {
	var user models.User
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.generateTokenPair(&user)
}

// Refresh rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (s *AuthService) Refresh(req *dto.RefreshRequest) (*dto.AuthResponse, error) {
	tokenHash := hashToken(req.RefreshToken)

	var stored models.RefreshToken
	if err := s.db.Where("token_hash = ? AND revoked = ?", tokenHash, false).First(&stored).Error; err != nil {
		return nil, ErrInvalidToken
	}

	// Only one of two concurrent refreshes wins the conditional update.
	res := s.db.Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", stored.ID, false).
		Update("revoked", true)
	if res.Error != nil {
		return nil, apperr.Internal("failed to revoke refresh token", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInvalidToken
	}
	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrInvalidToken
	}

	var user models.User
	if err := s.db.First(&user, "id = ?", stored.UserID).Error; err != nil {
		return nil, ErrInvalidToken
	}

	return s.generateTokenPair(&user)
}

func (s *AuthService) Logout(req *dto.LogoutRequest) error {
	tokenHash := hashToken(req.RefreshToken)
	return s.db.Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (s *AuthService) Me(userID uuid.UUID) (*dto.UserResponse, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	resp := toUserResponse(&user)
	return &resp, nil
}

func (s *AuthService) UpdateProfile(userID uuid.UUID, req *dto.UpdateProfileRequest) (*dto.UserResponse, error) {
	updates := map[string]interface{}{}
	if name := strings.TrimSpace(req.FullName); name != "" {
		updates["full_name"] = name
	}
	if phone := strings.TrimSpace(req.Phone); phone != "" {
		updates["phone"] = phone
	}
	if req.NewPassword != "" {
		if len(req.NewPassword) < minPasswordLength {
			return nil, ErrWeakPassword
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		updates["password"] = string(hash)
	}

	if len(updates) > 0 {
		res := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return nil, apperr.Internal("failed to update profile", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrUserNotFound
		}
	}

	return s.Me(userID)
}

// IssueAccessToken signs a standalone access token for user without
// creating a refresh token.
func (s *AuthService) IssueAccessToken(user *models.User) (string, error) {
	return s.generateAccessToken(user)
}

// sendVerification issues a verification link and reports whether the
// email went out.
func (s *AuthService) sendVerification(ctx context.Context, user *models.User) (bool, error) {
	raw, err := s.issueLinkToken(s.db.WithContext(ctx), user.ID, models.TokenPurposeVerifyEmail, verifyTokenTTL)
	if err != nil {
		return false, err
	}
	link := s.cfg.AppBaseURL + "/api/auth/verify-email?token=" + url.QueryEscape(raw)
	return s.deliver(ctx, user, notify.VerificationSubject(), notify.VerificationText(user.FullName, link), "verify_email"), nil
}

func (s *AuthService) deliver(ctx context.Context, user *models.User, subject, body, action string) bool {
	if s.mailer == nil || !s.mailer.Enabled() {
		slog.Info("account email skipped, SMTP not configured", "action", action, "user_id", user.ID.String())
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, accountMailWait)
	defer cancel()
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		slog.Warn("account email failed", "action", action, "user_id", user.ID.String(), "error", err)
		return false
	}
	return true
}

// issueLinkToken replaces any unused token of the same purpose and returns
// the raw value to embed in a link.
func (s *AuthService) issueLinkToken(db *gorm.DB, userID uuid.UUID, purpose string, ttl time.Duration) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	raw := hex.EncodeToString(rawBytes)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
			Delete(&models.UserToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&models.UserToken{
			UserID:    userID,
			Purpose:   purpose,
			TokenHash: hashToken(raw),
			ExpiresAt: s.now().Add(ttl),
		}).Error
	})
	if err != nil {
		return "", apperr.Internal("failed to issue link token", err)
	}
	return raw, nil
}

// consumeLinkToken marks the token used. The conditional update lets only
// one concurrent caller succeed.
func (s *AuthService) consumeLinkToken(tx *gorm.DB, raw, purpose string) (*models.UserToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrLinkTokenInvalid
	}

	var token models.UserToken
	if err := tx.Where("token_hash = ? AND purpose = ?", hashToken(raw), purpose).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkTokenInvalid
		}
		return nil, apperr.Internal("failed to load link token", err)
	}
	if token.UsedAt != nil {
		return nil, ErrLinkTokenInvalid
	}
	now := s.now()
	if now.After(token.ExpiresAt) {
		return nil, ErrLinkTokenExpired
	}

	res := tx.Model(&models.UserToken{}).
		Where("id = ? AND used_at IS NULL", token.ID).
		Update("used_at", now)
	if res.Error != nil {
		return nil, apperr.Internal("failed to consume link token", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrLinkTokenInvalid
	}
	return &token, nil
}

func (s *AuthService) generateTokenPair(user *models.User) (*dto.AuthResponse, error) {
	accessToken, err := s.generateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.generateRefreshToken(user)
	if err != nil {
		return nil, err
	}

	return &dto.AuthResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         toUserResponse(user),
	}, nil
}

func (s *AuthService) generateAccessToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":   user.ID.String(),
		"email": user.Email,
		"role":  user.Role,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(s.cfg.JWTAccessExpiry).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

func (s *AuthService) generateRefreshToken(user *models.User) (string, error) {
	rawBytes := make([]byte, 32)
	if _, err := rand.Read(rawBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	rawToken := base64.URLEncoding.EncodeToString(rawBytes)

	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: time.Now().Add(s.cfg.JWTRefreshExpiry),
	}

	if err := s.db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return rawToken, nil
}

func toUserResponse(user *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:            user.ID,
		FullName:      user.FullName,
		Email:         user.Email,
		Phone:         user.Phone,
		Role:          user.Role,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
