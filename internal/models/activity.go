package models

import "time"

// Activity types.
const (
	ActivityCall    = "call"
	ActivityEmail   = "email"
	ActivityMeeting = "meeting"
	ActivityNote    = "note"
)

// Activity is a logged interaction with a CRM record.
type Activity struct {
	TenantModel

	Type            string    `gorm:"type:varchar(16);not null;index" json:"type"`
	Subject         string    `gorm:"not null" json:"subject"`
	Description     string    `gorm:"type:text" json:"description"`
	DurationMinutes *int      `json:"duration_minutes"`
	OccurredAt      time.Time `gorm:"index" json:"occurred_at"`

	ContactID     *string      `gorm:"type:uuid;index" json:"contact"`
	Contact       *Contact     `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL" json:"-"`
	CompanyID     *string      `gorm:"type:uuid;index" json:"company"`
	Company       *Company     `gorm:"foreignKey:CompanyID;constraint:OnDelete:SET NULL" json:"-"`
	OpportunityID *string      `gorm:"type:uuid;index" json:"opportunity"`
	Opportunity   *Opportunity `gorm:"foreignKey:OpportunityID;constraint:OnDelete:SET NULL" json:"-"`
	LeadID        *string      `gorm:"type:uuid;index" json:"lead"`
	Lead          *Lead        `gorm:"foreignKey:LeadID;constraint:OnDelete:SET NULL" json:"-"`
}
