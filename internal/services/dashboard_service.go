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

// DashboardWidgetInput creates or patches a dashboard widget.
type DashboardWidgetInput struct {
	Title         *string        `json:"title" validate:"omitempty,min=1,max=150"`
	WidgetType    *string        `json:"widget_type" validate:"omitempty,min=1,max=64"`
	Configuration map[string]any `json:"configuration"`
	Order         *int           `json:"order" validate:"omitempty,min=0"`
}

// DashboardWidgetService manages the widgets on an organization's dashboard.
type DashboardWidgetService struct {
	store *ScopedStore[models.DashboardWidget, *models.DashboardWidget]
}

// NewDashboardWidgetService constructs a DashboardWidgetService.
func NewDashboardWidgetService(db *gorm.DB, audit *AuditService) (*DashboardWidgetService, error) {
	store, err := NewScopedStore[models.DashboardWidget](db, audit, "dashboard_widget", "Dashboard widget", ListSpec{
		SearchFields: []string{"title", "widget_type"},
		Orderings:    map[string]string{"order": "position", "created_at": "created_at"},
		DefaultOrder: "dashboard_widgets.position ASC",
	})
	if err != nil {
		return nil, err
	}
	return &DashboardWidgetService{store: store}, nil
}

func (s *DashboardWidgetService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.DashboardWidget], error) {
	return s.store.List(ctx, scope, q)
}

func (s *DashboardWidgetService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.DashboardWidget, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *DashboardWidgetService) Create(ctx context.Context, scope tenancy.Scope, input DashboardWidgetInput) (*models.DashboardWidget, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	for field, value := range map[string]*string{"title": input.Title, "widget_type": input.WidgetType} {
		if value == nil || strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(field, "This field is required.")
		}
	}
	widget := &models.DashboardWidget{
		Title:         strings.TrimSpace(*input.Title),
		WidgetType:    strings.TrimSpace(*input.WidgetType),
		Configuration: jsonMap(input.Configuration),
	}
	if input.Order != nil {
		widget.Order = *input.Order
	}
	if err := s.store.Create(ctx, scope, widget, nil, nil); err != nil {
		return nil, err
	}
	return widget, nil
}

func (s *DashboardWidgetService) Update(ctx context.Context, scope tenancy.Scope, id string, input DashboardWidgetInput) (*models.DashboardWidget, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	for column, value := range map[string]*string{"title": input.Title, "widget_type": input.WidgetType} {
		if value != nil && strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(column, "This field may not be blank.")
		}
		setString(updates, column, value)
	}
	if input.Configuration != nil {
		updates["configuration"] = jsonMap(input.Configuration)
	}
	if input.Order != nil {
		updates["position"] = *input.Order
	}
	return s.store.Update(ctx, scope, id, updates, nil, nil)
}

func (s *DashboardWidgetService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// LayoutInput creates or patches a layout configuration. An empty user makes
// the layout organization wide.
type LayoutInput struct {
	UserID        *string        `json:"user" validate:"omitempty,uuid"`
	PageType      *string        `json:"page_type" validate:"omitempty,oneof=dashboard contact_list contact_detail company_detail opportunity_pipeline tasks"`
	Configuration map[string]any `json:"configuration"`
	IsDefault     *bool          `json:"is_default"`
}

// LayoutService manages saved page layouts.
type LayoutService struct {
	store *ScopedStore[models.LayoutConfiguration, *models.LayoutConfiguration]
}

// NewLayoutService constructs a LayoutService.
func NewLayoutService(db *gorm.DB, audit *AuditService) (*LayoutService, error) {
	store, err := NewScopedStore[models.LayoutConfiguration](db, audit, "layout", "Layout configuration", ListSpec{
		SearchFields: []string{"page_type"},
		Filters:      map[string]string{"page_type": "page_type", "user": "user_id", "is_default": "is_default"},
		Orderings:    map[string]string{"created_at": "created_at", "updated_at": "updated_at"},
	})
	if err != nil {
		return nil, err
	}
	return &LayoutService{store: store}, nil
}

func (s *LayoutService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.LayoutConfiguration], error) {
	return s.store.List(ctx, scope, q)
}

func (s *LayoutService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.LayoutConfiguration, error) {
	return s.store.Get(ctx, scope, id)
}

// Create saves a layout. The user, when set, must be the owner or an active
// member, and only one layout may exist per user, page type and default flag.
func (s *LayoutService) Create(ctx context.Context, scope tenancy.Scope, input LayoutInput) (*models.LayoutConfiguration, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.PageType == nil {
		return nil, apperrors.FieldError("page_type", "This field is required.")
	}
	layout := &models.LayoutConfiguration{
		UserID:        optionalID(input.UserID),
		PageType:      *input.PageType,
		Configuration: jsonMap(input.Configuration),
	}
	if input.IsDefault != nil {
		layout.IsDefault = *input.IsDefault
	}
	refs := []ReferenceCheck{MemberRef("user", input.UserID)}
	err := s.store.Create(ctx, scope, layout, refs, func(tx *gorm.DB) error {
		return uniqueLayout(tx, layout.ID)
	})
	if err != nil {
		return nil, err
	}
	return layout, nil
}

func (s *LayoutService) Update(ctx context.Context, scope tenancy.Scope, id string, input LayoutInput) (*models.LayoutConfiguration, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setRef(updates, "user_id", input.UserID)
	setString(updates, "page_type", input.PageType)
	if input.Configuration != nil {
		updates["configuration"] = jsonMap(input.Configuration)
	}
	if input.IsDefault != nil {
		updates["is_default"] = *input.IsDefault
	}
	refs := []ReferenceCheck{MemberRef("user", input.UserID)}
	return s.store.Update(ctx, scope, id, updates, refs, func(tx *gorm.DB, layout *models.LayoutConfiguration) error {
		return uniqueLayout(tx, layout.ID)
	})
}

func (s *LayoutService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// uniqueLayout checks the stored row against its siblings. Organization wide
// layouts have a NULL user, which a unique index does not compare.
func uniqueLayout(tx *gorm.DB, id string) error {
	var current models.LayoutConfiguration
	if err := tx.Where("id = ?", id).Take(&current).Error; err != nil {
		return err
	}
	query := tx.Model(&models.LayoutConfiguration{}).
		Where("organization_id = ? AND page_type = ? AND is_default = ? AND id <> ?",
			current.OrganizationID, current.PageType, current.IsDefault, current.ID)
	if current.UserID == nil {
		query = query.Where("user_id IS NULL")
	} else {
		query = query.Where("user_id = ?", *current.UserID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.NewValidation("Layout configuration with these values already exists.", nil)
	}
	return nil
}

func jsonMap(values map[string]any) datatypes.JSONMap {
	if values == nil {
		return datatypes.JSONMap{}
	}
	return datatypes.JSONMap(values)
}
