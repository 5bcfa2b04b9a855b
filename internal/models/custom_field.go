package models

import "gorm.io/datatypes"

// CustomField defines an extra attribute on one entity type of an organization.
type CustomField struct {
	TenantModel

	EntityType   string                      `gorm:"type:varchar(16);not null;index" json:"entity_type"`
	FieldName    string                      `gorm:"not null" json:"field_name"`
	Label        string                      `gorm:"not null" json:"label"`
	FieldType    string                      `gorm:"type:varchar(16);not null" json:"field_type"`
	Options      datatypes.JSONSlice[string] `json:"options"`
	IsRequired   bool                        `gorm:"default:false" json:"is_required"`
	DefaultValue string                      `json:"default_value"`
	Order        int                         `gorm:"column:position;default:0" json:"order"`
	IsActive     bool                        `gorm:"default:true" json:"is_active"`
}
