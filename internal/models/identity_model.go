package models

import (
	"time"

	"github.com/Kyz7/chainverse/internal/role"
)

const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// Identity is a user, admin or community admin account. Accounts are never
// hard-deleted; deactivation clears Active.
type Identity struct {
	ID            uint         `gorm:"primaryKey" json:"id"`
	Surface       role.Surface `gorm:"size:32;not null;uniqueIndex:idx_identity_surface_email" json:"role"`
	Name          string       `gorm:"size:100" json:"name"`
	Email         string       `gorm:"size:255;not null;uniqueIndex:idx_identity_surface_email" json:"email"`
	Password      string       `gorm:"size:255" json:"-"`
	Provider      string       `gorm:"size:50;default:'local'" json:"provider"`
	Active        bool         `gorm:"not null;default:true" json:"active"`
	Verified      bool         `gorm:"not null;default:false" json:"verified"`
	WalletAddress string       `gorm:"size:64" json:"walletAddress,omitempty"`
	Bio           string       `gorm:"size:500" json:"bio,omitempty"`
	CommunityName string       `gorm:"size:100" json:"communityName,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}
