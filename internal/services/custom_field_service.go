package services

import (
	"context"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// CustomFieldInput creates or patches a custom field definition.
type CustomFieldInput struct {
	EntityType   *string   `json:"entity_type" validate:"omitempty,oneof=contact company opportunity task"`
	FieldName    *string   `json:"field_name" validate:"omitempty,min=1,max=100"`
	Label        *string   `json:"label" validate:"omitempty,min=1,max=255"`
	FieldType    *string   `json:"field_type" validate:"omitempty,oneof=text number date dropdown checkbox textarea"`
	Options      *[]string `json:"options"`
	IsRequired   *bool     `json:"is_required"`
	DefaultValue *string   `json:"default_value"`
	Order        *int      `json:"order" validate:"omitempty,min=0"`
	IsActive     *bool     `json:"is_active"`
}

// CustomFieldService manages per-organization field definitions.
type CustomFieldService struct {
	store *ScopedStore[models.CustomField, *models.CustomField]
}

// NewCustomFieldService constructs a CustomFieldService.
func NewCustomFieldService(db *gorm.DB, audit *AuditService) (*CustomFieldService, error) {
	store, err := NewScopedStore[models.CustomField](db, audit, "custom_field", "Custom field", ListSpec{
		SearchFields: []string{"field_name", "label"},
		Filters:      map[string]string{"entity_type": "entity_type", "field_type": "field_type", "is_active": "is_active"},
		Orderings:    map[string]string{"order": "position", "created_at": "created_at"},
		DefaultOrder: "custom_fields.entity_type ASC, custom_fields.position ASC",
	})
	if err != nil {
		return nil, err
	}
	return &CustomFieldService{store: store}, nil
}

func (s *CustomFieldService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.CustomField], error) {
	return s.store.List(ctx, scope, q)
}

func (s *CustomFieldService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.CustomField, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *CustomFieldService) Create(ctx context.Context, scope tenancy.Scope, input CustomFieldInput) (*models.CustomField, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	for field, value := range map[string]*string{
		"entity_type": input.EntityType,
		"field_name":  input.FieldName,
		"label":       input.Label,
		"field_type":  input.FieldType,
	} {
		if value == nil || strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(field, "This field is required.")
		}
	}

	field := &models.CustomField{
		EntityType:   *input.EntityType,
		FieldName:    strings.TrimSpace(*input.FieldName),
		Label:        strings.TrimSpace(*input.Label),
		FieldType:    *input.FieldType,
		DefaultValue: deref(input.DefaultValue),
		IsActive:     true,
	}
	if input.Options != nil {
		field.Options = datatypes.JSONSlice[string](*input.Options)
	}
	if input.IsRequired != nil {
		field.IsRequired = *input.IsRequired
	}
	if input.Order != nil {
		field.Order = *input.Order
	}
	if err := checkDropdown(field.FieldType, field.Options); err != nil {
		return nil, err
	}

	err := s.store.Create(ctx, scope, field, nil, func(tx *gorm.DB) error {
		if input.IsActive != nil && !*input.IsActive {
			if err := tx.Model(field).Update("is_active", false).Error; err != nil {
				return err
			}
			field.IsActive = false
		}
		return uniqueFieldName(tx, field.OrganizationID, field.EntityType, field.FieldName, field.ID)
	})
	if err != nil {
		return nil, err
	}
	return field, nil
}

func (s *CustomFieldService) Update(ctx context.Context, scope tenancy.Scope, id string, input CustomFieldInput) (*models.CustomField, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "entity_type", input.EntityType)
	setString(updates, "field_name", input.FieldName)
	setString(updates, "label", input.Label)
	setString(updates, "field_type", input.FieldType)
	setString(updates, "default_value", input.DefaultValue)
	if input.Options != nil {
		updates["options"] = datatypes.JSONSlice[string](*input.Options)
	}
	if input.IsRequired != nil {
		updates["is_required"] = *input.IsRequired
	}
	if input.Order != nil {
		updates["position"] = *input.Order
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	return s.store.Update(ctx, scope, id, updates, nil, func(tx *gorm.DB, field *models.CustomField) error {
		var current models.CustomField
		if err := tx.Where("id = ?", field.ID).Take(&current).Error; err != nil {
			return err
		}
		if err := checkDropdown(current.FieldType, current.Options); err != nil {
			return err
		}
		return uniqueFieldName(tx, current.OrganizationID, current.EntityType, current.FieldName, current.ID)
	})
}

func (s *CustomFieldService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

func checkDropdown(fieldType string, options []string) error {
	if fieldType == "dropdown" && len(options) == 0 {
		return apperrors.FieldError("options", "Dropdown fields need at least one option.")
	}
	return nil
}

func uniqueFieldName(tx *gorm.DB, organizationID, entityType, fieldName, excludeID string) error {
	var count int64
	if err := tx.Model(&models.CustomField{}).
		Where("organization_id = ? AND entity_type = ? AND field_name = ? AND id <> ?", organizationID, entityType, fieldName, excludeID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.FieldError("field_name", "A field with this name already exists for this entity.")
	}
	return nil
}
