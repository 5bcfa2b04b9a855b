package models

import "gorm.io/datatypes"

// Company is an account that contacts and opportunities can belong to.
type Company struct {
	TenantModel

	Name          string   `gorm:"not null;index" json:"name"`
	Website       string   `json:"website"`
	Industry      string   `gorm:"index" json:"industry"`
	EmployeeCount *int     `json:"employee_count"`
	AnnualRevenue *float64 `json:"annual_revenue"`
	Phone         string   `json:"phone"`
	AddressLine1  string   `json:"address_line1"`
	AddressLine2  string   `json:"address_line2"`
	City          string   `json:"city"`
	State         string   `json:"state"`
	PostalCode    string   `json:"postal_code"`
	Country       string   `json:"country"`

	ParentCompanyID *string  `gorm:"type:uuid;index" json:"parent_company"`
	ParentCompany   *Company `gorm:"foreignKey:ParentCompanyID;constraint:OnDelete:SET NULL" json:"-"`
	OwnerID         *string  `gorm:"type:uuid;index" json:"owner"`
	Owner           *User    `gorm:"foreignKey:OwnerID;constraint:OnDelete:SET NULL" json:"-"`

	CustomFields datatypes.JSONMap `json:"custom_fields"`
}
