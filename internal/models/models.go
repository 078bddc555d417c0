package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the closed set of account types a user can hold. The role is
// assigned once at registration and never changes afterwards.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleMerchant Role = "merchant"
	RoleRider    Role = "rider"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleMerchant, RoleRider:
		return Role(s), true
	}
	return "", false
}

type User struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"     json:"id"`
	Email         string     `gorm:"uniqueIndex;not null"     json:"email"`
	Name          string     `json:"name,omitempty"`
	PasswordHash  string     `json:"-"`
	Role          Role       `gorm:"not null"                 json:"role"`
	EmailVerified bool       `gorm:"default:false"            json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	RefreshTokens    []RefreshToken    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProviderAccounts []ProviderAccount `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// RefreshToken stores a sha256 digest of an issued refresh token, never the
// raw value. Revoked is terminal: no path flips it back to false.
type RefreshToken struct {
	ID        uint      `gorm:"primaryKey"               json:"id"`
	TokenHash string    `gorm:"uniqueIndex;not null"     json:"-"`
	JTI       string    `gorm:"index;not null"           json:"jti"`
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	UserAgent string    `json:"user_agent,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Revoked   bool      `gorm:"default:false"            json:"revoked"`
	ExpiresAt int64     `gorm:"not null"                 json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return now.Unix() >= t.ExpiresAt
}

// ProviderAccount links a local user to an external identity provider. The
// (provider, provider_account_id) pair is unique so two local users can never
// claim the same external identity.
type ProviderAccount struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	Provider          string     `gorm:"uniqueIndex:idx_provider_account;not null" json:"provider"`
	ProviderAccountID string     `gorm:"uniqueIndex:idx_provider_account;not null" json:"provider_account_id"`
	Email             string     `json:"email,omitempty"`
	Name              string     `json:"name,omitempty"`
	AccessToken       string     `json:"-"`
	RefreshToken      string     `json:"-"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
