package models

import (
	"time"

	"gorm.io/datatypes"
)

// Organization is the tenant root. Its owner is implicitly a full member.
type Organization struct {
	BaseModel

	Name      string  `gorm:"not null" json:"name"`
	Slug      string  `gorm:"uniqueIndex;not null" json:"slug"`
	Subdomain *string `gorm:"uniqueIndex;size:64" json:"subdomain"`
	OwnerID   string  `gorm:"type:uuid;not null;index" json:"owner"`
	Owner     *User   `gorm:"foreignKey:OwnerID" json:"-"`
	IsActive  bool    `gorm:"default:true" json:"is_active"`

	Timezone      string            `gorm:"default:'UTC'" json:"timezone"`
	BusinessHours datatypes.JSONMap `json:"business_hours"`

	LogoURL        string `json:"logo_url"`
	FaviconURL     string `json:"favicon_url"`
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	CustomDomain   string `json:"custom_domain"`
}

// Membership grants a user access to an organization.
type Membership struct {
	BaseModel

	OrganizationID     string    `gorm:"type:uuid;not null;uniqueIndex:idx_membership_org_user,priority:1" json:"organization"`
	UserID             string    `gorm:"type:uuid;not null;uniqueIndex:idx_membership_org_user,priority:2;index" json:"user_id"`
	User               *User     `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	RoleID             *string   `gorm:"type:uuid;index" json:"role_id"`
	Role               *Role     `gorm:"foreignKey:RoleID;constraint:OnDelete:SET NULL" json:"role,omitempty"`
	JoinedAt           time.Time `json:"joined_at"`
	IsActive           bool      `gorm:"default:true" json:"is_active"`
	InvitationAccepted bool      `gorm:"default:false" json:"invitation_accepted"`
	Teams              []Team    `gorm:"many2many:team_members;" json:"teams,omitempty"`
}
