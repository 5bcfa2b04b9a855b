package models

import (
	"time"

	"gorm.io/datatypes"
)

// MFASecret stores the encrypted TOTP seed and hashed backup codes of a user.
type MFASecret struct {
	BaseModel

	UserID      string                      `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Secret      string                      `gorm:"not null" json:"-"`
	BackupCodes datatypes.JSONSlice[string] `json:"-"`
	ConfirmedAt *time.Time                  `json:"confirmed_at"`
	LastUsedAt  *time.Time                  `json:"last_used_at"`
}
