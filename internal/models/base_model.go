package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared fields for all persistent models.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUID identifiers are generated automatically.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// GetID returns the primary key.
func (m *BaseModel) GetID() string {
	return m.ID
}

// CursorKey returns the columns cursor pagination orders by.
func (m *BaseModel) CursorKey() (time.Time, string) {
	return m.CreatedAt, m.ID
}

// ValidID reports whether id is a UUID in canonical 36 character form. Other
// values never reach a uuid column.
func ValidID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

// TenantScoped is implemented by every record owned by exactly one organization.
type TenantScoped interface {
	GetID() string
	TenantID() string
	AssignTenant(organizationID string, actorID *string)
}

// TenantModel is embedded by organization owned resources. The organization is
// fixed at creation; updates never rewrite it.
type TenantModel struct {
	BaseModel

	OrganizationID string  `gorm:"type:uuid;not null;index" json:"organization"`
	CreatedByID    *string `gorm:"type:uuid;index" json:"created_by"`
}

// TenantID returns the owning organization.
func (m *TenantModel) TenantID() string {
	return m.OrganizationID
}

// AssignTenant stamps the owning organization and the creating actor.
func (m *TenantModel) AssignTenant(organizationID string, actorID *string) {
	m.OrganizationID = organizationID
	m.CreatedByID = actorID
}
