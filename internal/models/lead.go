package models

import (
	"time"

	"gorm.io/datatypes"
)

// Lead statuses.
const (
	LeadNew         = "new"
	LeadContacted   = "contacted"
	LeadQualified   = "qualified"
	LeadUnqualified = "unqualified"
	LeadConverted   = "converted"
)

// Lead is an unqualified prospect that may convert into a contact.
type Lead struct {
	TenantModel

	Name           string   `gorm:"not null" json:"name"`
	Email          string   `gorm:"index" json:"email"`
	Phone          string   `json:"phone"`
	CompanyName    string   `json:"company_name"`
	JobTitle       string   `json:"job_title"`
	Website        string   `json:"website"`
	Status         string   `gorm:"type:varchar(16);not null;default:'new';index" json:"status"`
	Source         string   `gorm:"type:varchar(16);index" json:"source"`
	Score          int      `gorm:"not null;default:0" json:"score"`
	Priority       string   `gorm:"type:varchar(16);not null;default:'medium'" json:"priority"`
	EstimatedValue *float64 `json:"estimated_value"`
	Currency       string   `gorm:"size:3;default:'USD'" json:"currency"`
	Notes          string   `gorm:"type:text" json:"notes"`

	AssignedToID       *string    `gorm:"type:uuid;index" json:"assigned_to"`
	AssignedTo         *User      `gorm:"foreignKey:AssignedToID;constraint:OnDelete:SET NULL" json:"-"`
	ConvertedAt        *time.Time `json:"converted_at"`
	ConvertedContactID *string    `gorm:"type:uuid" json:"converted_contact"`
	ConvertedContact   *Contact   `gorm:"foreignKey:ConvertedContactID;constraint:OnDelete:SET NULL" json:"-"`
	Tags               []Tag      `gorm:"many2many:lead_tags;" json:"tags"`

	CustomFields datatypes.JSONMap `json:"custom_fields"`
}
