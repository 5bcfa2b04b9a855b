package models

import "gorm.io/datatypes"

// Layout page types.
const (
	PageDashboard           = "dashboard"
	PageContactList         = "contact_list"
	PageContactDetail       = "contact_detail"
	PageCompanyDetail       = "company_detail"
	PageOpportunityPipeline = "opportunity_pipeline"
	PageTasks               = "tasks"
)

// DashboardWidget is one configured tile on the organization dashboard.
type DashboardWidget struct {
	TenantModel

	Title         string            `gorm:"not null" json:"title"`
	WidgetType    string            `gorm:"type:varchar(64);not null" json:"widget_type"`
	Configuration datatypes.JSONMap `json:"configuration"`
	Order         int               `gorm:"column:position;default:0" json:"order"`
}

// LayoutConfiguration stores a page layout for the organization or, with
// UserID set, for one of its users.
type LayoutConfiguration struct {
	TenantModel

	UserID        *string           `gorm:"type:uuid;index" json:"user"`
	PageType      string            `gorm:"type:varchar(32);not null" json:"page_type"`
	Configuration datatypes.JSONMap `json:"configuration"`
	IsDefault     bool              `gorm:"default:false" json:"is_default"`
}
