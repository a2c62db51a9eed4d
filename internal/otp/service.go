// Package otp issues and verifies the one-time codes used for email
// verification at signup and for password resets.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/utils"
	"github.com/google/uuid"
)

const (
	CodeLength = 6
	// MaxAttempts wrong guesses burn the code.
	MaxAttempts = 5
)

var (
	// ErrExpiredOrInvalid is a user-correctable validation failure, never a
	// system fault.
	ErrExpiredOrInvalid = errors.New("invalid or expired code")
	ErrNotFound         = errors.New("otp not found")
)

// Store persists at most one OTP per email. Expired rows must disappear on
// their own (TTL); FindByEmail returns ErrNotFound for them.
type Store interface {
	Replace(ctx context.Context, otp *models.OTP) error
	FindByEmail(ctx context.Context, email string) (*models.OTP, error)
	Delete(ctx context.Context, id string) error
	// AddAttempt records a wrong guess against otp and returns the new count.
	AddAttempt(ctx context.Context, otp *models.OTP) (int, error)
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

func NewService(store Store, ttl time.Duration) *Service {
	return &Service{store: store, ttl: ttl, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Issue replaces any OTP of the email with a fresh code and returns the plain
// code for delivery. Only its hash is stored.
func (s *Service) Issue(ctx context.Context, email string, purpose models.OTPPurpose) (*models.OTP, string, error) {
	code, err := utils.RandomDigits(CodeLength)
	if err != nil {
		return nil, "", fmt.Errorf("generate otp: %w", err)
	}

	now := s.now().UTC()
	record := &models.OTP{
		ID:        uuid.NewString(),
		Email:     email,
		Purpose:   purpose,
		CodeHash:  utils.HashToken(code),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}

	if err := s.store.Replace(ctx, record); err != nil {
		return nil, "", fmt.Errorf("store otp: %w", err)
	}
	return record, code, nil
}

// Verify checks code against the live OTP of email and consumes it on
// success. Misses, expiry, purpose and code mismatches all yield
// ErrExpiredOrInvalid.
func (s *Service) Verify(ctx context.Context, email string, purpose models.OTPPurpose, code string) error {
	record, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return ErrExpiredOrInvalid
	}
	if err != nil {
		return fmt.Errorf("load otp: %w", err)
	}

	if !s.now().Before(record.ExpiresAt) {
		if err := s.store.Delete(ctx, record.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("drop expired otp: %w", err)
		}
		return ErrExpiredOrInvalid
	}

	if record.Attempts >= MaxAttempts {
		return s.burn(ctx, record)
	}

	if record.Purpose != purpose || !utils.TokenHashEqual(code, record.CodeHash) {
		attempts, err := s.store.AddAttempt(ctx, record)
		if errors.Is(err, ErrNotFound) {
			return ErrExpiredOrInvalid
		}
		if err != nil {
			return fmt.Errorf("count otp attempt: %w", err)
		}
		if attempts >= MaxAttempts {
			return s.burn(ctx, record)
		}
		return ErrExpiredOrInvalid
	}

	return s.Consume(ctx, record.ID)
}

func (s *Service) burn(ctx context.Context, record *models.OTP) error {
	if err := s.store.Delete(ctx, record.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("drop exhausted otp: %w", err)
	}
	return ErrExpiredOrInvalid
}

func (s *Service) Consume(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrExpiredOrInvalid
		}
		return fmt.Errorf("consume otp: %w", err)
	}
	return nil
}
