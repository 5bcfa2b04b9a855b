package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationTaskAssigned   = "task_assigned"
	NotificationOpportunityWon = "opportunity_won"
	NotificationInvitation     = "invitation"
	NotificationReportReady    = "report_ready"
	NotificationGeneric        = "generic"
)

// Notification is an in-app message addressed to one user.
type Notification struct {
	BaseModel

	UserID         string            `gorm:"type:uuid;not null;index" json:"user_id"`
	OrganizationID *string           `gorm:"type:uuid;index" json:"organization"`
	Type           string            `gorm:"type:varchar(32);not null" json:"type"`
	Title          string            `gorm:"type:varchar(255);not null" json:"title"`
	Message        string            `gorm:"type:text" json:"message"`
	Link           string            `gorm:"type:text" json:"link"`
	Metadata       datatypes.JSONMap `json:"metadata"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
