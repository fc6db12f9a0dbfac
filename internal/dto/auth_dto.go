package dto

import (
	"time"

	"github.com/google/uuid"
)

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UpdateProfileRequest struct {
	FullName    string `json:"full_name"`
	Phone       string `json:"phone"`
	NewPassword string `json:"new_password"`
}

type AuthResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	User         UserResponse `json:"user"`
}

type UserResponse struct {
	ID            uuid.UUID `json:"id"`
	FullName      string    `json:"full_name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Role          string    `json:"role"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type ResendVerificationResponse struct {
	Message   string `json:"message"`
	EmailSent bool   `json:"email_sent"`
}

// PublicProfileResponse is what any visitor sees on a seller's page.
type PublicProfileResponse struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"full_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	Avatar         string    `json:"avatar,omitempty"`
	EmailVerified  bool      `json:"email_verified"`
	MemberSince    time.Time `json:"member_since"`
	AverageRating  float64   `json:"average_rating"`
	TotalReviews   int64     `json:"total_reviews"`
	ActiveListings int64     `json:"active_listings"`
}

// SellerSummary is the public slice of a user shown next to listings.
type SellerSummary struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Avatar   string    `json:"avatar,omitempty"`
}
