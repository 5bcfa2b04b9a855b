package models

// Team groups memberships within one organization.
type Team struct {
	BaseModel

	OrganizationID string       `gorm:"type:uuid;not null;uniqueIndex:idx_team_org_name,priority:1" json:"organization"`
	Name           string       `gorm:"not null;uniqueIndex:idx_team_org_name,priority:2" json:"name"`
	Description    string       `json:"description"`
	Members        []Membership `gorm:"many2many:team_members;" json:"members,omitempty"`
}
