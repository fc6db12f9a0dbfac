package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User is a marketplace member. Users are hard-deleted through the admin
// cascade, so there is no soft-delete column.
type User struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FullName      string    `gorm:"size:120;not null" json:"full_name"`
	Email         string    `gorm:"size:255;not null;uniqueIndex:idx_users_email" json:"email"`
	Password      string    `gorm:"not null" json:"-"`
	Phone         string    `gorm:"size:32" json:"phone,omitempty"`
	Avatar        string    `gorm:"size:500" json:"avatar,omitempty"`
	Role          string    `gorm:"size:20;not null;default:'student'" json:"role"`
	EmailVerified bool      `gorm:"default:false" json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = RoleStudent
	}
	return nil
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
