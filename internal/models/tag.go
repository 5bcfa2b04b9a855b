package models

// Tag labels contacts and leads within one organization.
type Tag struct {
	TenantModel

	Name  string `gorm:"not null;size:50" json:"name"`
	Color string `gorm:"size:7;default:'#6b7280'" json:"color"`
}
