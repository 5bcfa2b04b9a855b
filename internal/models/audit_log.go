package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records one mutating call. OrganizationID is nil for account level events.
type AuditLog struct {
	ID             string            `gorm:"primaryKey;type:uuid" json:"id"`
	OrganizationID *string           `gorm:"type:uuid;index" json:"organization"`
	UserID         *string           `gorm:"type:uuid;index" json:"user_id"`
	Email          string            `json:"email"`
	Action         string            `gorm:"not null;index" json:"action"`
	Resource       string            `gorm:"index" json:"resource"`
	Result         string            `gorm:"not null" json:"result"`
	IPAddress      string            `json:"ip_address"`
	UserAgent      string            `json:"user_agent"`
	Metadata       datatypes.JSONMap `json:"metadata"`
	CreatedAt      time.Time         `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

func (a *AuditLog) CursorKey() (time.Time, string) {
	return a.CreatedAt, a.ID
}
