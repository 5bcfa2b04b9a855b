package models

import "gorm.io/datatypes"

// RoleKind distinguishes seeded roles from organization defined ones.
type RoleKind string

const (
	RoleKindSystem RoleKind = "system"
	RoleKindCustom RoleKind = "custom"
)

// Seeded role names.
const (
	RoleAdmin = "Admin"
	RoleStaff = "Staff"
)

// Role is an organization scoped named permission set.
type Role struct {
	BaseModel

	OrganizationID string                      `gorm:"type:uuid;not null;uniqueIndex:idx_role_org_name,priority:1" json:"organization"`
	Name           string                      `gorm:"not null;uniqueIndex:idx_role_org_name,priority:2" json:"name"`
	Description    string                      `json:"description"`
	Kind           RoleKind                    `gorm:"type:varchar(16);not null;default:'custom'" json:"kind"`
	Permissions    datatypes.JSONSlice[string] `json:"permissions"`
}

// IsSystem reports whether the role was seeded with its organization.
func (r *Role) IsSystem() bool {
	return r.Kind == RoleKindSystem
}
