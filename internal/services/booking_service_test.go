package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/campx/campx-backend/internal/apperr"
	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/notify"
	"github.com/campx/campx-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	mu      sync.Mutex
	result  notify.Result
	notices []notify.BookingNotice
}

func (f *fakeNotifier) NotifyBooking(_ context.Context, n notify.BookingNotice) notify.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return f.result
}

type publishedEvent struct {
	userID uuid.UUID
	kind   string
}

type fakePublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (f *fakePublisher) Publish(userID uuid.UUID, eventType string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, publishedEvent{userID, eventType})
}

func TestBook_LastUnitMarksSold(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "lamp", 1)
	notifier := &fakeNotifier{result: notify.Result{EmailSent: true}}
	pub := &fakePublisher{}
	svc := NewBookingService(db, notifier, pub)

	resp, err := svc.Book(context.Background(), listing.ID, buyer.ID)
	require.NoError(t, err)

	assert.Equal(t, listing.ID, resp.ListingID)
	assert.True(t, resp.SaleRecorded)
	assert.True(t, resp.MessageCreated)
	assert.True(t, resp.EmailSent)
	assert.False(t, resp.SMSSent)
	assert.Equal(t, 0, resp.RemainingQuantity)
	assert.Equal(t, models.StatusSold, resp.Status)

	var stored models.Listing
	require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
	assert.Equal(t, 0, stored.Quantity)
	assert.Equal(t, models.StatusSold, stored.Status)

	assert.Equal(t, int64(1), testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ? AND buyer_id = ?", listing.ID, buyer.ID))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Message{}, "sender_id = ? AND receiver_id = ? AND listing_id = ?", buyer.ID, seller.ID, listing.ID))

	require.Len(t, notifier.notices, 1)
	assert.Equal(t, seller.Email, notifier.notices[0].SellerEmail)
	assert.Equal(t, buyer.FullName, notifier.notices[0].BuyerName)
	require.Len(t, pub.events, 2)
	assert.Equal(t, seller.ID, pub.events[0].userID)

	_, err = svc.Book(context.Background(), listing.ID, buyer.ID)
	assert.ErrorIs(t, err, ErrAlreadySold)
	assert.Equal(t, apperr.KindAlreadySold, apperr.KindOf(err))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ?", listing.ID))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.Message{}, "listing_id = ?", listing.ID))
}

func TestBook_SoldOnlyAfterLastUnit(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "chairs", 3)
	svc := NewBookingService(db, nil, nil)

	for i, want := range []int{2, 1, 0} {
		resp, err := svc.Book(context.Background(), listing.ID, buyer.ID)
		require.NoError(t, err, "booking %d", i+1)
		assert.Equal(t, want, resp.RemainingQuantity)

		var stored models.Listing
		require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
		if want > 0 {
			assert.Equal(t, models.StatusAvailable, stored.Status)
		} else {
			assert.Equal(t, models.StatusSold, stored.Status)
		}
	}

	assert.Equal(t, int64(3), testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ?", listing.ID))
	assert.Equal(t, int64(3), testutil.Count(t, db, &models.Message{}, "listing_id = ?", listing.ID))
}

func TestBook_QuantityNeverNegative(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "pens", 2)
	svc := NewBookingService(db, nil, nil)

	succeeded := 0
	for i := 0; i < 5; i++ {
		if _, err := svc.Book(context.Background(), listing.ID, buyer.ID); err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrAlreadySold)
		}
	}

	var stored models.Listing
	require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 0, stored.Quantity)
	assert.Equal(t, models.StatusSold, stored.Status)
}

func TestBook_SelfBookingRejected(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	listing := testutil.CreateListing(t, db, seller, "desk", 1)
	notifier := &fakeNotifier{}
	svc := NewBookingService(db, notifier, nil)

	_, err := svc.Book(context.Background(), listing.ID, seller.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSelfBooking)
	assert.Equal(t, apperr.KindInvalidOperation, apperr.KindOf(err))

	var stored models.Listing
	require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
	assert.Equal(t, 1, stored.Quantity)
	assert.Equal(t, models.StatusAvailable, stored.Status)
	assert.Zero(t, testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ?", listing.ID))
	assert.Zero(t, testutil.Count(t, db, &models.Message{}, "listing_id = ?", listing.ID))
	assert.Empty(t, notifier.notices)
}

func TestBook_PreconditionOrder(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	listing := testutil.CreateListing(t, db, seller, "bike", 1)
	require.NoError(t, db.Model(listing).Updates(map[string]interface{}{"quantity": 0, "status": models.StatusSold}).Error)
	svc := NewBookingService(db, nil, nil)

	_, err := svc.Book(context.Background(), uuid.New(), seller.ID)
	assert.ErrorIs(t, err, ErrListingNotFound)

	// Sold is reported before the self-booking check.
	_, err = svc.Book(context.Background(), listing.ID, seller.ID)
	assert.ErrorIs(t, err, ErrAlreadySold)
}

func TestBook_NotificationFailureDoesNotFailBooking(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "kettle", 1)
	notifier := &fakeNotifier{result: notify.Result{Degraded: true}}
	svc := NewBookingService(db, notifier, nil)

	resp, err := svc.Book(context.Background(), listing.ID, buyer.ID)
	require.NoError(t, err)
	assert.True(t, resp.MessageCreated)
	assert.False(t, resp.EmailSent)
	assert.False(t, resp.SMSSent)
	assert.True(t, resp.NotificationDegraded)
}

func TestBook_FailedInsertRollsBackEverything(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "fan", 1)
	require.NoError(t, db.Exec(`CREATE TRIGGER block_messages BEFORE INSERT ON messages
		BEGIN SELECT RAISE(ABORT, 'messages offline'); END;`).Error)
	svc := NewBookingService(db, nil, nil)

	_, err := svc.Book(context.Background(), listing.ID, buyer.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	var stored models.Listing
	require.NoError(t, db.First(&stored, "id = ?", listing.ID).Error)
	assert.Equal(t, 1, stored.Quantity)
	assert.Equal(t, models.StatusAvailable, stored.Status)
	assert.Zero(t, testutil.Count(t, db, &models.SaleRecord{}, "listing_id = ?", listing.ID))
}

func TestBook_SaleRecordSnapshotsListing(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	buyer := testutil.CreateUser(t, db, "buyer")
	listing := testutil.CreateListing(t, db, seller, "guitar", 2)
	svc := NewBookingService(db, nil, nil)

	resp, err := svc.Book(context.Background(), listing.ID, buyer.ID)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Listing{}).Where("id = ?", listing.ID).Update("title", "renamed").Error)

	var sale models.SaleRecord
	require.NoError(t, db.First(&sale, "id = ?", resp.SaleID).Error)
	assert.Equal(t, "guitar", sale.Title)
	assert.True(t, listing.Price.Equal(sale.Price))
	assert.Equal(t, []string(listing.Images), []string(sale.Images))
	assert.Equal(t, seller.ID, sale.SellerID)

	purchases, err := svc.Purchases(buyer.ID)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	assert.Equal(t, seller.FullName, purchases[0].SellerName)

	sold, err := svc.SoldBy(seller.ID)
	require.NoError(t, err)
	require.Len(t, sold, 1)
	assert.Equal(t, buyer.FullName, sold[0].BuyerName)
}

func TestBook_UnknownBuyer(t *testing.T) {
	db := testutil.NewDB(t)
	seller := testutil.CreateUser(t, db, "seller")
	listing := testutil.CreateListing(t, db, seller, "mug", 1)
	svc := NewBookingService(db, nil, nil)

	_, err := svc.Book(context.Background(), listing.ID, uuid.New())
	assert.True(t, errors.Is(err, ErrUserNotFound))
}
