package models

import "time"

// Session backs one signed-in device. TokenDigest is the SHA-256 of the
// current refresh token and changes on every rotation.
type Session struct {
	BaseModel

	UserID      string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User        *User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	TokenDigest string     `gorm:"column:token_digest;uniqueIndex;not null" json:"-"`
	IPAddress   string     `json:"ip_address"`
	UserAgent   string     `json:"user_agent"`
	ExpiresAt   time.Time  `gorm:"index" json:"expires_at"`
	LastUsedAt  time.Time  `json:"last_used_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// Active is false once the session is revoked or past ExpiresAt.
func (s *Session) Active(now time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return now.Before(s.ExpiresAt)
}
