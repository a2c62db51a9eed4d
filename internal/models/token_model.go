package models

import (
	"strings"
	"time"

	"github.com/Kyz7/chainverse/internal/role"
)

type RefreshToken struct {
	ID         uint         `gorm:"primaryKey" json:"id"`
	IdentityID uint         `gorm:"index;not null" json:"identity_id"`
	Surface    role.Surface `gorm:"size:32;index;not null" json:"surface"`
	TokenHash  string       `gorm:"uniqueIndex;size:64;not null" json:"-"` // sha256 of the signed token
	ExpiresAt  time.Time    `gorm:"index;not null" json:"expires_at"`
	Revoked    bool         `gorm:"default:false" json:"revoked"`
	RotatedAt  *time.Time   `json:"rotated_at,omitempty"` // set when a refresh replaced this token
	CreatedAt  time.Time    `json:"created_at"`
}

type OTPPurpose string

const (
	OTPPurposeRegistration  OTPPurpose = "registration"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
)

// PasswordResetPurpose binds a reset code to the surface it was requested
// on, so a code sent for a user account cannot reset an admin password.
func PasswordResetPurpose(surface role.Surface) OTPPurpose {
	return OTPPurposePasswordReset + OTPPurpose(":"+string(surface))
}

func (p OTPPurpose) IsPasswordReset() bool {
	return strings.HasPrefix(string(p), string(OTPPurposePasswordReset))
}

// OTP is the single live one-time code of an email address.
type OTP struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Email     string     `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Purpose   OTPPurpose `gorm:"size:32;not null" json:"purpose"`
	CodeHash  string     `gorm:"size:64;not null" json:"-"`
	Attempts  int        `gorm:"not null;default:0" json:"attempts"` // wrong guesses so far
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time  `json:"created_at"`
}
