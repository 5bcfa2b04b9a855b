package models

import "time"

// Token purposes.
const (
	TokenEmailVerification = "email_verification"
	TokenPasswordReset     = "password_reset"
)

// UserToken is a single use, hashed token mailed to a user.
type UserToken struct {
	BaseModel

	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Purpose   string     `gorm:"type:varchar(32);not null;index" json:"purpose"`
	TokenHash string     `gorm:"uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time  `gorm:"index" json:"expires_at"`
	UsedAt    *time.Time `json:"used_at"`
}
