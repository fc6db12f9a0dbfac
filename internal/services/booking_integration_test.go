//go:build integration

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campx/campx-backend/internal/database"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("campx"),
		postgres.WithUsername("campx"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func TestBook_ConcurrentBuyersPostgres(t *testing.T) {
	db := startPostgres(t)
	seller := testutil.CreateUser(t, db, "seller")

	cases := []struct {
		name     string
		quantity int
		buyers   int
	}{
		{"last unit", 1, 10},
		{"three units", 3, 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			listing := testutil.CreateListing(t, db, seller, fmt.Sprintf("item-%d", tc.quantity), tc.quantity)
			buyers := make([]*models.User, tc.buyers)
			for i := range buyers {
				buyers[i] = testutil.CreateUser(t, db, fmt.Sprintf("buyer%d", i))
			}

			svc := NewBookingService(db, &fakeNotifier{}, nil)
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, sold int
			)
			start := make(chan struct{})
			for _, b := range buyers {
				wg.Add(1)
				go func(buyer *models.User) {
					defer wg.Done()
					<-start
					_, err := svc.Book(context.Background(), listing.ID, buyer.ID)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, ErrAlreadySold):
						sold++
					default:
						t.Errorf("unexpected booking error: %v", err)
					}
				}(b)
			}
			close(start)
			wg.Wait()

			assert.Equal(t, tc.quantity, ok)
			assert.Equal(t, tc.buyers-tc.quantity, sold)

			var after models.Listing
			require.NoError(t, db.First(&after, "id = ?", listing.ID).Error)
			assert.Equal(t, 0, after.Quantity)
			assert.Equal(t, models.StatusSold, after.Status)
			assert.Equal(t, int64(tc.quantity), testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ?", listing.ID))
		})
	}
}
