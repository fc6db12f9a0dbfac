package logging

import (
	"log/slog"
	"time"

	"github.com/campx/campx-backend/internal/models"
	"gorm.io/gorm"
)

const logRetention = 30 * 24 * time.Hour

// StartCleanup runs a daily goroutine that purges old system logs and
// expired recently-deleted listing snapshots.
func StartCleanup(db *gorm.DB, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				Cleanup(db, time.Now())
			case <-done:
				return
			}
		}
	}()
}

// Cleanup performs one purge relative to now.
func Cleanup(db *gorm.DB, now time.Time) {
	result := db.Where("timestamp < ?", now.Add(-logRetention)).Delete(&models.SystemLog{})
	if result.Error != nil {
		slog.Error("log cleanup failed", "action", "cleanup_logs", "error", result.Error)
	} else if result.RowsAffected > 0 {
		slog.Info("log cleanup completed", "deleted", result.RowsAffected)
	}

	result = db.Where("expires_at <= ?", now).Delete(&models.DeletedListing{})
	if result.Error != nil {
		slog.Error("snapshot cleanup failed", "action", "cleanup_deleted_listings", "error", result.Error)
	} else if result.RowsAffected > 0 {
		slog.Info("expired listing snapshots purged", "deleted", result.RowsAffected)
	}
}
