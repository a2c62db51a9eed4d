package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Kyz7/chainverse/internal/models"
	"github.com/Kyz7/chainverse/internal/role"
	"github.com/Kyz7/chainverse/internal/utils"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

var (
	ErrNotFound         = errors.New("identity not found")
	ErrEmailTaken       = errors.New("email already registered")
	ErrStoreUnavailable = errors.New("credential store unavailable")
)

// Service is the credential store for all three surfaces.
type Service struct {
	db     *gorm.DB
	policy *bluemonday.Policy
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, policy: bluemonday.StrictPolicy()}
}

type ProfileUpdate struct {
	Name          *string
	Bio           *string
	WalletAddress *string
	CommunityName *string
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) FindByEmail(ctx context.Context, surface role.Surface, email string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.WithContext(ctx).
		Where("surface = ? AND email = ?", surface, NormalizeEmail(email)).
		First(&identity).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return &identity, nil
}

func (s *Service) FindByID(ctx context.Context, surface role.Surface, id uint) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.WithContext(ctx).
		Where("surface = ?", surface).
		First(&identity, id).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return &identity, nil
}

// Create stores a new identity. A non-empty password is hashed first; Google
// accounts are created without one.
func (s *Service) Create(ctx context.Context, identity *models.Identity, password string) error {
	if !identity.Surface.Valid() {
		return fmt.Errorf("create identity: invalid surface %q", identity.Surface)
	}
	identity.Email = NormalizeEmail(identity.Email)
	identity.Name = s.clean(identity.Name)
	if identity.Provider == "" {
		identity.Provider = models.ProviderLocal
	}

	if _, err := s.FindByEmail(ctx, identity.Surface, identity.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if password != "" {
		hashed, err := utils.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		identity.Password = hashed
	}

	identity.Active = true
	if err := s.db.WithContext(ctx).Create(identity).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, surface role.Surface, id uint, update ProfileUpdate) (*models.Identity, error) {
	identity, err := s.FindByID(ctx, surface, id)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if update.Name != nil {
		changes["name"] = s.clean(*update.Name)
	}
	if update.Bio != nil {
		changes["bio"] = s.clean(*update.Bio)
	}
	if update.WalletAddress != nil {
		changes["wallet_address"] = strings.TrimSpace(*update.WalletAddress)
	}
	if update.CommunityName != nil && surface == role.CommunityAdmin {
		changes["community_name"] = s.clean(*update.CommunityName)
	}
	if len(changes) == 0 {
		return identity, nil
	}

	if err := s.db.WithContext(ctx).Model(identity).Updates(changes).Error; err != nil {
		return nil, storeErr(err)
	}
	return s.FindByID(ctx, surface, id)
}

func (s *Service) MarkVerified(ctx context.Context, identity *models.Identity) error {
	if identity.Verified {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(identity).Update("verified", true).Error; err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *Service) SetPassword(ctx context.Context, surface role.Surface, id uint, password string) error {
	hashed, err := utils.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.Identity{}).
		Where("id = ? AND surface = ?", id, surface).
		Update("password", hashed)
	if result.Error != nil {
		return storeErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-disables an identity and revokes its refresh tokens.
func (s *Service) Deactivate(ctx context.Context, surface role.Surface, id uint) (*models.Identity, error) {
	identity, err := s.FindByID(ctx, surface, id)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(identity).Update("active", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.RefreshToken{}).
			Where("identity_id = ? AND surface = ? AND revoked = ?", id, surface, false).
			Update("revoked", true).Error
	})
	if err != nil {
		return nil, storeErr(err)
	}

	identity.Active = false
	return identity, nil
}

// List returns one page of a surface's identities matching params, with the
// total number of matches.
func (s *Service) List(ctx context.Context, surface role.Surface, params ListParams) ([]models.Identity, int64, error) {
	params.normalize()

	query := applyFilters(s.db.WithContext(ctx).Model(&models.Identity{}).Where("surface = ?", surface), params)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeErr(err)
	}

	identities := make([]models.Identity, 0, params.Limit)
	err := applySorting(query, params).
		Offset((params.Page - 1) * params.Limit).
		Limit(params.Limit).
		Find(&identities).Error
	if err != nil {
		return nil, 0, storeErr(err)
	}
	return identities, total, nil
}

func (s *Service) Count(ctx context.Context, surface role.Surface) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Identity{}).Where("surface = ?", surface).Count(&total).Error; err != nil {
		return 0, storeErr(err)
	}
	return total, nil
}

// clean strips markup from user-supplied text.
func (s *Service) clean(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

func storeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	// The unique (surface, email) index catches a racing Create.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEmailTaken
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
