package models

import (
	"strings"
	"time"
)

// User is a login identity. Organization access comes from ownership or memberships.
type User struct {
	BaseModel

	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	Password  string `gorm:"not null" json:"-"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	AvatarURL string `json:"avatar_url"`

	EmailVerified bool `gorm:"default:false" json:"email_verified"`
	MFAEnabled    bool `gorm:"default:false" json:"mfa_enabled"`
	IsSuperuser   bool `gorm:"default:false" json:"is_superuser"`
	IsActive      bool `gorm:"default:true" json:"is_active"`

	AuthProvider string `gorm:"default:'local'" json:"auth_provider"`
	AuthSubject  string `gorm:"index" json:"-"`

	MFASecret *MFASecret `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`

	LastLoginAt    *time.Time `json:"last_login_at"`
	LastLoginIP    string     `json:"-"`
	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// FullName joins first and last name, falling back to the email address.
func (u *User) FullName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name == "" {
		return u.Email
	}
	return name
}
