package models

import (
	"time"

	"gorm.io/datatypes"
)

// EmailTemplate is a reusable subject and body pair.
type EmailTemplate struct {
	TenantModel

	Name      string                      `gorm:"not null" json:"name"`
	Subject   string                      `gorm:"not null" json:"subject"`
	BodyHTML  string                      `gorm:"type:text" json:"body_html"`
	BodyText  string                      `gorm:"type:text" json:"body_text"`
	Variables datatypes.JSONSlice[string] `json:"variables"`
	IsActive  bool                        `gorm:"default:true" json:"is_active"`
}

// Email is a logged message exchanged with a contact.
type Email struct {
	TenantModel

	Subject    string                      `gorm:"not null" json:"subject"`
	Body       string                      `gorm:"type:text" json:"body"`
	FromEmail  string                      `json:"from_email"`
	ToEmails   datatypes.JSONSlice[string] `json:"to_emails"`
	CcEmails   datatypes.JSONSlice[string] `json:"cc_emails"`
	BccEmails  datatypes.JSONSlice[string] `json:"bcc_emails"`
	IsSent     bool                        `gorm:"default:false;index" json:"is_sent"`
	SentAt     *time.Time                  `json:"sent_at"`
	IsOpened   bool                        `gorm:"default:false" json:"is_opened"`
	OpenedAt   *time.Time                  `json:"opened_at"`
	ClickCount int                         `gorm:"default:0" json:"click_count"`

	ContactID  *string        `gorm:"type:uuid;index" json:"contact"`
	Contact    *Contact       `gorm:"foreignKey:ContactID;constraint:OnDelete:SET NULL" json:"-"`
	TemplateID *string        `gorm:"type:uuid;index" json:"template"`
	Template   *EmailTemplate `gorm:"foreignKey:TemplateID;constraint:OnDelete:SET NULL" json:"-"`
}

// EmailCampaign is a bulk message with aggregate engagement counters.
type EmailCampaign struct {
	TenantModel

	Name         string                      `gorm:"not null" json:"name"`
	Subject      string                      `gorm:"not null" json:"subject"`
	Body         string                      `gorm:"type:text" json:"body"`
	Recipients   datatypes.JSONSlice[string] `json:"recipients"`
	IsSent       bool                        `gorm:"default:false" json:"is_sent"`
	SentAt       *time.Time                  `json:"sent_at"`
	SentCount    int                         `gorm:"default:0" json:"sent_count"`
	OpenedCount  int                         `gorm:"default:0" json:"opened_count"`
	ClickedCount int                         `gorm:"default:0" json:"clicked_count"`

	TemplateID *string        `gorm:"type:uuid;index" json:"template"`
	Template   *EmailTemplate `gorm:"foreignKey:TemplateID;constraint:OnDelete:SET NULL" json:"-"`
}
