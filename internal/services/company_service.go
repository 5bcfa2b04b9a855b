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

// CompanyInput creates or patches a company. Nil fields are left unchanged on update.
type CompanyInput struct {
	Name            *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Website         *string        `json:"website" validate:"omitempty,url"`
	Industry        *string        `json:"industry" validate:"omitempty,max=100"`
	EmployeeCount   *int           `json:"employee_count" validate:"omitempty,min=0"`
	AnnualRevenue   *float64       `json:"annual_revenue" validate:"omitempty,min=0"`
	Phone           *string        `json:"phone" validate:"omitempty,max=20"`
	AddressLine1    *string        `json:"address_line1"`
	AddressLine2    *string        `json:"address_line2"`
	City            *string        `json:"city"`
	State           *string        `json:"state"`
	PostalCode      *string        `json:"postal_code"`
	Country         *string        `json:"country"`
	ParentCompanyID *string        `json:"parent_company" validate:"omitempty,uuid"`
	OwnerID         *string        `json:"owner" validate:"omitempty,uuid"`
	CustomFields    map[string]any `json:"custom_fields"`
}

func (in CompanyInput) updates() map[string]any {
	updates := map[string]any{}
	setString(updates, "name", in.Name)
	setString(updates, "website", in.Website)
	setString(updates, "industry", in.Industry)
	setString(updates, "phone", in.Phone)
	setString(updates, "address_line1", in.AddressLine1)
	setString(updates, "address_line2", in.AddressLine2)
	setString(updates, "city", in.City)
	setString(updates, "state", in.State)
	setString(updates, "postal_code", in.PostalCode)
	setString(updates, "country", in.Country)
	setRef(updates, "parent_company_id", in.ParentCompanyID)
	setRef(updates, "owner_id", in.OwnerID)
	if in.EmployeeCount != nil {
		updates["employee_count"] = *in.EmployeeCount
	}
	if in.AnnualRevenue != nil {
		updates["annual_revenue"] = *in.AnnualRevenue
	}
	if in.CustomFields != nil {
		updates["custom_fields"] = datatypes.JSONMap(in.CustomFields)
	}
	return updates
}

func (in CompanyInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		Ref("parent_company", &models.Company{}, in.ParentCompanyID),
		MemberRef("owner", in.OwnerID),
	}
}

// CompanyService manages companies.
type CompanyService struct {
	store *ScopedStore[models.Company, *models.Company]
}

// NewCompanyService constructs a CompanyService.
func NewCompanyService(db *gorm.DB, audit *AuditService) (*CompanyService, error) {
	store, err := NewScopedStore[models.Company](db, audit, "company", "Company", ListSpec{
		SearchFields: []string{"name", "website", "industry", "city"},
		Filters:      map[string]string{"industry": "industry", "owner": "owner_id", "parent_company": "parent_company_id", "country": "country"},
		DateFilters:  map[string]string{"created": "created_at"},
		Orderings:    map[string]string{"name": "name", "created_at": "created_at", "updated_at": "updated_at", "annual_revenue": "annual_revenue"},
		DefaultOrder: "companies.name ASC",
	})
	if err != nil {
		return nil, err
	}
	return &CompanyService{store: store}, nil
}

func (s *CompanyService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Company], error) {
	return s.store.List(ctx, scope, q)
}

func (s *CompanyService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Company, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *CompanyService) Create(ctx context.Context, scope tenancy.Scope, input CompanyInput) (*models.Company, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}

	company := &models.Company{
		Name:            strings.TrimSpace(*input.Name),
		Website:         deref(input.Website),
		Industry:        deref(input.Industry),
		EmployeeCount:   input.EmployeeCount,
		AnnualRevenue:   input.AnnualRevenue,
		Phone:           deref(input.Phone),
		AddressLine1:    deref(input.AddressLine1),
		AddressLine2:    deref(input.AddressLine2),
		City:            deref(input.City),
		State:           deref(input.State),
		PostalCode:      deref(input.PostalCode),
		Country:         deref(input.Country),
		ParentCompanyID: optionalID(input.ParentCompanyID),
		OwnerID:         optionalID(input.OwnerID),
	}
	if input.CustomFields != nil {
		company.CustomFields = datatypes.JSONMap(input.CustomFields)
	}
	if err := s.store.Create(ctx, scope, company, input.refs(), nil); err != nil {
		return nil, err
	}
	return company, nil
}

func (s *CompanyService) Update(ctx context.Context, scope tenancy.Scope, id string, input CompanyInput) (*models.Company, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.ParentCompanyID != nil && strings.TrimSpace(*input.ParentCompanyID) == strings.TrimSpace(id) {
		return nil, apperrors.FieldError("parent_company", "A company cannot be its own parent.")
	}
	return s.store.Update(ctx, scope, id, input.updates(), input.refs(), nil)
}

func (s *CompanyService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// Contacts lists the contacts of a company.
func (s *CompanyService) Contacts(ctx context.Context, scope tenancy.Scope, id string, q ListQuery) (Page[models.Contact], error) {
	company, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Page[models.Contact]{}, err
	}
	query := s.store.DB().WithContext(ensureContext(ctx)).Model(&models.Contact{}).
		Where("organization_id = ? AND company_id = ?", company.OrganizationID, company.ID)
	return paginate[models.Contact](query, contactListSpec, "contacts", q)
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}

func setString(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = strings.TrimSpace(*value)
	}
}

// setRef records a nullable reference. An empty string clears it.
func setRef(updates map[string]any, column string, value *string) {
	if value != nil {
		updates[column] = optionalID(value)
	}
}
