package otp

import (
	"context"
	"errors"

	"github.com/Kyz7/chainverse/internal/models"
	"gorm.io/gorm"
)

// GormStore keeps OTPs in the otps table. Expired rows are removed by
// database.Sweep; until then Service.Verify rejects them by expires_at.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Replace(ctx context.Context, otp *models.OTP) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ?", otp.Email).Delete(&models.OTP{}).Error; err != nil {
			return err
		}
		return tx.Create(otp).Error
	})
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*models.OTP, error) {
	var otp models.OTP
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&otp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &otp, nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.OTP{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AddAttempt(ctx context.Context, otp *models.OTP) (int, error) {
	var attempts int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.OTP{}).
			Where("id = ?", otp.ID).
			UpdateColumn("attempts", gorm.Expr("attempts + ?", 1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&models.OTP{}).Select("attempts").Where("id = ?", otp.ID).Scan(&attempts).Error
	})
	return attempts, err
}
