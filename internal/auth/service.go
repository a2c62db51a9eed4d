package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Kyz7/chainverse/internal/mailer"
	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/otp"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/user"
	"github.com/Kyz7/chainverse/internal/utils"
	"gorm.io/gorm"
)

// Session is the outcome of a successful login or refresh.
type Session struct {
	Identity *models.Identity
	Tokens   utils.TokenPair
}

// rotationGrace is how long a rotated refresh token answers ErrRefreshConflict
// instead of counting as reuse. Two tabs sharing the cookie may refresh at
// the same moment; the loser must not sign both out.
const rotationGrace = 10 * time.Second

type Service struct {
	db     *gorm.DB
	users  *user.Service
	issuer *utils.TokenIssuer
	otps   *otp.Service
	mail   mailer.Mailer
}

func NewService(db *gorm.DB, users *user.Service, issuer *utils.TokenIssuer, otps *otp.Service, mail mailer.Mailer) *Service {
	return &Service{db: db, users: users, issuer: issuer, otps: otps, mail: mail}
}

func (s *Service) AccessTTL() time.Duration { return s.issuer.AccessTTL() }
func (s *Service) RefreshTTL() time.Duration { return s.issuer.RefreshTTL() }

func (s *Service) Login(ctx context.Context, surface role.Surface, email, password string) (*Session, error) {
	identity, err := s.users.FindByEmail(ctx, surface, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !utils.CheckPasswordHash(password, identity.Password) {
		return nil, ErrInvalidCredentials
	}
	if !identity.Active {
		return nil, ErrAccountDisabled
	}

	return s.startSession(ctx, s.db, identity)
}

// Refresh exchanges a refresh token for a new token pair. The presented token
// is revoked in the same transaction, so each refresh token works once.
// Presenting a token rotated within rotationGrace yields ErrRefreshConflict;
// any other revoked token ends every session of its identity on the surface.
func (s *Service) Refresh(ctx context.Context, surface role.Surface, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}

	claims, err := s.issuer.VerifyRefresh(refreshToken, surface)
	if err != nil {
		return nil, ErrUnauthorized
	}
	identityID, err := claims.IdentityID()
	if err != nil {
		return nil, ErrUnauthorized
	}

	tokenHash := utils.HashToken(refreshToken)

	var session *Session
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND identity_id = ? AND surface = ? AND revoked = ?", tokenHash, identityID, surface, false).
			Updates(map[string]interface{}{"revoked": true, "rotated_at": s.issuer.Now()})
		if result.Error != nil {
			return fmt.Errorf("%w: %v", user.ErrStoreUnavailable, result.Error)
		}
		if result.RowsAffected != 1 {
			return ErrUnauthorized
		}

		var identity models.Identity
		if err := tx.Where("surface = ?", surface).First(&identity, identityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUnauthorized
			}
			return fmt.Errorf("%w: %v", user.ErrStoreUnavailable, err)
		}
		if !identity.Active {
			return ErrUnauthorized
		}

		var err error
		session, err = s.startSession(ctx, tx, &identity)
		return err
	})
	if errors.Is(err, ErrUnauthorized) {
		return nil, s.detectReuse(ctx, surface, identityID, tokenHash)
	}
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Logout revokes every live refresh token of the identity on the surface.
func (s *Service) Logout(ctx context.Context, surface role.Surface, identityID uint) error {
	return s.revokeAll(ctx, s.db, surface, identityID)
}

// RequestRegistrationOTP sends a signup code to an email that has no user
// account yet.
func (s *Service) RequestRegistrationOTP(ctx context.Context, email string) error {
	email = user.NormalizeEmail(email)

	_, err := s.users.FindByEmail(ctx, role.User, email)
	if err == nil {
		return user.ErrEmailTaken
	}
	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	return s.sendOTP(ctx, email, models.OTPPurposeRegistration)
}

// Register creates a verified user once the signup code checks out and
// starts its session.
func (s *Service) Register(ctx context.Context, name, email, password, code string) (*Session, error) {
	email = user.NormalizeEmail(email)

	if err := s.otps.Verify(ctx, email, models.OTPPurposeRegistration, code); err != nil {
		return nil, err
	}

	identity := &models.Identity{
		Surface:  role.User,
		Name:     name,
		Email:    email,
		Provider: models.ProviderLocal,
		Verified: true,
	}
	if err := s.users.Create(ctx, identity, password); err != nil {
		return nil, err
	}

	log.Printf("👤 New user registered: %s", identity.Email)
	return s.startSession(ctx, s.db, identity)
}

// ForgotPassword sends a reset code when the account exists. Unknown emails
// succeed silently so the endpoint does not reveal which accounts exist.
func (s *Service) ForgotPassword(ctx context.Context, surface role.Surface, email string) error {
	email = user.NormalizeEmail(email)

	identity, err := s.users.FindByEmail(ctx, surface, email)
	if errors.Is(err, user.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !identity.Active {
		return nil
	}

	return s.sendOTP(ctx, email, models.PasswordResetPurpose(surface))
}

// ResetPassword sets a new password after checking the reset code and signs
// the identity out everywhere on the surface.
func (s *Service) ResetPassword(ctx context.Context, surface role.Surface, email, code, newPassword string) error {
	email = user.NormalizeEmail(email)

	if err := s.otps.Verify(ctx, email, models.PasswordResetPurpose(surface), code); err != nil {
		return err
	}

	identity, err := s.users.FindByEmail(ctx, surface, email)
	if errors.Is(err, user.ErrNotFound) {
		return otp.ErrExpiredOrInvalid
	}
	if err != nil {
		return err
	}

	if err := s.users.SetPassword(ctx, surface, identity.ID, newPassword); err != nil {
		return err
	}
	return s.revokeAll(ctx, s.db, surface, identity.ID)
}

// SignInWithGoogle logs a Google-verified email into the user surface,
// creating the account on first sign-in.
func (s *Service) SignInWithGoogle(ctx context.Context, profile *GoogleProfile) (*Session, error) {
	if profile == nil || profile.Email == "" || !profile.EmailVerified {
		return nil, ErrUnauthorized
	}

	identity, err := s.users.FindByEmail(ctx, role.User, profile.Email)
	switch {
	case errors.Is(err, user.ErrNotFound):
		identity = &models.Identity{
			Surface:  role.User,
			Name:     profile.Name,
			Email:    profile.Email,
			Provider: models.ProviderGoogle,
			Verified: true,
		}
		if err := s.users.Create(ctx, identity, ""); err != nil {
			return nil, err
		}
		log.Printf("👤 New Google user registered: %s", identity.Email)
	case err != nil:
		return nil, err
	case !identity.Active:
		return nil, ErrAccountDisabled
	default:
		if err := s.users.MarkVerified(ctx, identity); err != nil {
			return nil, err
		}
	}

	return s.startSession(ctx, s.db, identity)
}

func (s *Service) startSession(ctx context.Context, db *gorm.DB, identity *models.Identity) (*Session, error) {
	pair, err := s.issuer.IssueTokens(identity.ID, identity.Surface)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}

	rt := models.RefreshToken{
		IdentityID: identity.ID,
		Surface:    identity.Surface,
		TokenHash:  utils.HashToken(pair.RefreshToken),
		ExpiresAt:  pair.RefreshExpiresAt.UTC(),
	}
	if err := db.WithContext(ctx).Create(&rt).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", user.ErrStoreUnavailable, err)
	}

	return &Session{Identity: identity, Tokens: pair}, nil
}

// detectReuse classifies a refresh that matched no live token.
func (s *Service) detectReuse(ctx context.Context, surface role.Surface, identityID uint, tokenHash string) error {
	var presented models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ? AND identity_id = ? AND surface = ? AND revoked = ?", tokenHash, identityID, surface, true).
		First(&presented).Error
	if err != nil {
		return ErrUnauthorized
	}

	if presented.RotatedAt != nil && s.issuer.Now().Sub(*presented.RotatedAt) < rotationGrace {
		return ErrRefreshConflict
	}

	log.Printf("⚠️  Refresh token reuse detected for %s %d, revoking all sessions", surface, identityID)
	if err := s.revokeAll(ctx, s.db, surface, identityID); err != nil {
		log.Printf("⚠️  Failed to revoke sessions after reuse: %v", err)
	}
	return ErrUnauthorized
}

func (s *Service) revokeAll(ctx context.Context, db *gorm.DB, surface role.Surface, identityID uint) error {
	err := db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("identity_id = ? AND surface = ? AND revoked = ?", identityID, surface, false).
		Update("revoked", true).Error
	if err != nil {
		return fmt.Errorf("%w: %v", user.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Service) sendOTP(ctx context.Context, email string, purpose models.OTPPurpose) error {
	record, code, err := s.otps.Issue(ctx, email, purpose)
	if err != nil {
		return err
	}

	msg := mailer.OTPMessage(email, purpose, code, record.ExpiresAt.Sub(record.CreatedAt))
	if err := s.mail.Send(ctx, msg); err != nil {
		if cerr := s.otps.Consume(ctx, record.ID); cerr != nil {
			log.Printf("⚠️  Failed to drop undelivered OTP for %s: %v", email, cerr)
		}
		return fmt.Errorf("send otp email: %w", err)
	}
	return nil
}
