// Package testutil provides an in-memory store and fixtures for package tests.
package testutil

import (
	"fmt"
	"testing"

	"github.com/campx/campx-backend/internal/database"
	"github.com/campx/campx-backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a private in-memory SQLite database with foreign keys enforced
// and all marketplace tables migrated. A single connection is used, so code
// under test must run every statement of a transaction on the tx handle.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// CreateUser inserts a student (or the given role) with a unique email.
func CreateUser(t *testing.T, db *gorm.DB, name string, role ...string) *models.User {
	t.Helper()

	user := &models.User{
		FullName: name,
		Email:    fmt.Sprintf("%s-%s@campus.edu", name, uuid.NewString()[:8]),
		Password: "not-a-real-hash",
		Phone:    "+15550001111",
		Role:     models.RoleStudent,
	}
	if len(role) > 0 {
		user.Role = role[0]
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateListing inserts an Available listing owned by seller.
func CreateListing(t *testing.T, db *gorm.DB, seller *models.User, title string, quantity int) *models.Listing {
	t.Helper()

	listing := &models.Listing{
		SellerID:    seller.ID,
		Title:       title,
		Category:    "Books",
		Price:       decimal.NewFromInt(250),
		Condition:   "Good",
		Description: title + " in good shape",
		Quantity:    quantity,
		Status:      models.StatusAvailable,
		Images:      []string{"/uploads/" + title + ".jpg"},
	}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

// Count returns the number of rows of model matching query.
func Count(t *testing.T, db *gorm.DB, model interface{}, query string, args ...interface{}) int64 {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&n).Error)
	return n
}
