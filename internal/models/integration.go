package models

import (
	"time"

	"gorm.io/datatypes"
)

// Webhook delivers organization events to an external URL.
type Webhook struct {
	TenantModel

	Name     string                      `gorm:"not null" json:"name"`
	URL      string                      `gorm:"not null" json:"url"`
	Events   datatypes.JSONSlice[string] `json:"events"`
	Secret   string                      `json:"secret"`
	IsActive bool                        `gorm:"default:true;index" json:"is_active"`
}

// IntegrationKey is an API key handed to an external integration. Key is
// unique across all organizations.
type IntegrationKey struct {
	TenantModel

	Name        string                      `gorm:"not null" json:"name"`
	Key         string                      `gorm:"not null;uniqueIndex" json:"key"`
	Permissions datatypes.JSONSlice[string] `json:"permissions"`
	LastUsedAt  *time.Time                  `json:"last_used_at"`
	IsActive    bool                        `gorm:"default:true;index" json:"is_active"`
}
