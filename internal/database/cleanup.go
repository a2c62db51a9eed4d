package database

import (
	"fmt"
	"log"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// Sweep deletes expired OTPs and refresh tokens. Revoked refresh tokens stay
// until they expire so that replaying one can still be detected.
func Sweep(db *gorm.DB, now time.Time) (otps int64, tokens int64, err error) {
	result := db.Where("expires_at <= ?", now).Delete(&models.OTP{})
	if result.Error != nil {
		return 0, 0, fmt.Errorf("sweep otps: %w", result.Error)
	}
	otps = result.RowsAffected

	result = db.Where("expires_at <= ?", now).Delete(&models.RefreshToken{})
	if result.Error != nil {
		return otps, 0, fmt.Errorf("sweep refresh tokens: %w", result.Error)
	}
	return otps, result.RowsAffected, nil
}

// StartCleanup runs Sweep on the given cron schedule. The caller stops the
// returned scheduler on shutdown.
func StartCleanup(db *gorm.DB, schedule string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		otps, tokens, err := Sweep(db, time.Now().UTC())
		if err != nil {
			log.Printf("⚠️  Cleanup failed: %v", err)
			return
		}
		if otps > 0 {
			log.Printf("🧹 Cleaned up %d expired OTPs", otps)
		}
		if tokens > 0 {
			log.Printf("🧹 Cleaned up %d expired refresh tokens", tokens)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}

	c.Start()
	return c, nil
}
