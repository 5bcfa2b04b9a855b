package models

import "gorm.io/datatypes"

// Contact lifecycle stages.
const (
	ContactStageLead     = "lead"
	ContactStageProspect = "prospect"
	ContactStageCustomer = "customer"
	ContactStageInactive = "inactive"
)

// Contact is a person the organization is in touch with.
type Contact struct {
	TenantModel

	FirstName string `gorm:"not null" json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `gorm:"index" json:"email"`
	Phone     string `json:"phone"`
	Mobile    string `json:"mobile"`
	JobTitle  string `json:"job_title"`
	Stage     string `gorm:"type:varchar(16);not null;default:'lead';index" json:"stage"`
	Source    string `gorm:"type:varchar(16);index" json:"source"`

	CompanyID *string  `gorm:"type:uuid;index" json:"company"`
	Company   *Company `gorm:"foreignKey:CompanyID;constraint:OnDelete:SET NULL" json:"-"`
	OwnerID   *string  `gorm:"type:uuid;index" json:"owner"`
	Owner     *User    `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`
	Tags      []Tag    `gorm:"many2many:contact_tags;" json:"tags"`

	CustomFields datatypes.JSONMap `json:"custom_fields"`
}
