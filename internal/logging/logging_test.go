package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/campx/campx-backend/internal/models"
	"github.com/campx/campx-backend/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBHandler_StoresErrorRecords(t *testing.T) {
	db := testutil.NewDB(t)
	h := newDBHandler(db, time.Hour)
	logger := slog.New(h).With("request_id", "req-1")

	listingID := uuid.NewString()
	logger.Info("not persisted")
	logger.Error("cascade step failed",
		"action", "delete_listing",
		"listing_id", listingID,
		"error", "boom",
		"step", "reviews",
	)
	h.Stop()

	var logs []models.SystemLog
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "cascade step failed", entry.Message)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "delete_listing", entry.Action)
	assert.Equal(t, "boom", entry.Error)
	require.NotNil(t, entry.ListingID)
	assert.Equal(t, listingID, *entry.ListingID)

	var extra map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Extra, &extra))
	assert.Equal(t, "reviews", extra["step"])
}

func TestMultiHandler_FansOutByLevel(t *testing.T) {
	var info, errs bytes.Buffer
	logger := slog.New(NewMultiHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&errs, &slog.HandlerOptions{Level: slog.LevelError}),
	))

	logger.Info("hello")
	logger.Error("bad")

	assert.Contains(t, info.String(), "hello")
	assert.Contains(t, info.String(), "bad")
	assert.NotContains(t, errs.String(), "hello")
	assert.Contains(t, errs.String(), "bad")
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

type failingSink struct{ slog.Handler }

func (failingSink) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestMultiHandler_FailingSinkDoesNotBlockOthers(t *testing.T) {
	var out bytes.Buffer
	stdout := slog.NewJSONHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo})
	h := NewMultiHandler(failingSink{stdout}, nil, stdout)

	record := slog.NewRecord(time.Now(), slog.LevelError, "write failed", 0)
	err := h.Handle(context.Background(), record)

	assert.EqualError(t, err, "sink down")
	assert.Contains(t, out.String(), "write failed")
	assert.Same(t, h, h.WithGroup(""))
}

func TestCleanup_PurgesOldLogsAndExpiredSnapshots(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Now()
	seller := testutil.CreateUser(t, db, "seller")

	require.NoError(t, db.Create(&models.SystemLog{Timestamp: now.AddDate(0, 0, -31), Level: "ERROR"}).Error)
	require.NoError(t, db.Create(&models.SystemLog{Timestamp: now.Add(-time.Hour), Level: "ERROR"}).Error)
	require.NoError(t, db.Create(&models.DeletedListing{
		ListingID: uuid.New(), SellerID: seller.ID, Snapshot: []byte(`{}`),
		DeletedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&models.DeletedListing{
		ListingID: uuid.New(), SellerID: seller.ID, Snapshot: []byte(`{}`),
		DeletedAt: now, ExpiresAt: now.Add(24 * time.Hour),
	}).Error)

	Cleanup(db, now)

	assert.Equal(t, int64(1), testutil.Count(t, db, &models.SystemLog{}, "1 = 1"))
	assert.Equal(t, int64(1), testutil.Count(t, db, &models.DeletedListing{}, "1 = 1"))
}
