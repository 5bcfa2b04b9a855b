package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

var errOrganizationRequired = apperrors.FieldError("organization", "This field is required.")

// protectedColumns are never written by updates.
var protectedColumns = []string{"id", "organization_id", "created_by_id", "created_at", "organization", "created_by"}

// ScopedStore implements tenant-scoped data access for one resource type. Reads are
// restricted to the caller's organizations; anything outside is NOT_FOUND.
type ScopedStore[T any, PT interface {
	*T
	models.TenantScoped
}] struct {
	db       *gorm.DB
	audit    *AuditService
	resource string
	label    string
	table    string
	spec     ListSpec
}

// NewScopedStore constructs a store. resource is the audit prefix ("contact") and
// label the human name used in NOT_FOUND messages ("Contact").
func NewScopedStore[T any, PT interface {
	*T
	models.TenantScoped
}](db *gorm.DB, audit *AuditService, resource, label string, spec ListSpec) (*ScopedStore[T, PT], error) {
	if db == nil {
		return nil, fmt.Errorf("%s store: db is required", resource)
	}

	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("%s store: parse model: %w", resource, err)
	}

	return &ScopedStore[T, PT]{
		db:       db,
		audit:    audit,
		resource: resource,
		label:    label,
		table:    stmt.Schema.Table,
		spec:     spec,
	}, nil
}

// DB exposes the underlying handle for resource specific actions.
func (s *ScopedStore[T, PT]) DB() *gorm.DB {
	return s.db
}

// Table returns the resource table name.
func (s *ScopedStore[T, PT]) Table() string {
	return s.table
}

// Scoped returns a query over T restricted to scope. The boolean is false when the
// scope admits no organizations (or its filter is not an id), in which case
// callers should return nothing.
func (s *ScopedStore[T, PT]) Scoped(ctx context.Context, scope tenancy.Scope) (*gorm.DB, bool) {
	return s.scopedOn(s.db.WithContext(ensureContext(ctx)), scope)
}

func (s *ScopedStore[T, PT]) scopedOn(db *gorm.DB, scope tenancy.Scope) (*gorm.DB, bool) {
	if len(scope.OrganizationIDs) == 0 {
		return nil, false
	}
	// A malformed organization filter cannot match any tenant.
	if scope.Filter != "" && !models.ValidID(scope.Filter) {
		return nil, false
	}
	column := qualify(s.table, "organization_id")
	query := db.Model(new(T)).Where(column+" IN ?", scope.OrganizationIDs)
	if scope.Filter != "" {
		query = query.Where(column+" = ?", scope.Filter)
	}
	if scope.Organization != nil {
		query = query.Where(column+" = ?", scope.Organization.ID)
	}
	return query, true
}

// List returns one page of records visible to scope.
func (s *ScopedStore[T, PT]) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[T], error) {
	query, ok := s.Scoped(ctx, scope)
	if !ok {
		q = q.normalised()
		return Page[T]{Items: []T{}, Page: q.Page, PerPage: q.PerPage}, nil
	}
	page, err := paginate[T](query, s.spec, s.table, q)
	if err != nil {
		return page, fmt.Errorf("%s store: %w", s.resource, err)
	}
	return page, nil
}

// Get loads one record visible to scope.
func (s *ScopedStore[T, PT]) Get(ctx context.Context, scope tenancy.Scope, id string) (PT, error) {
	return s.getOn(s.db.WithContext(ensureContext(ctx)), scope, id, true)
}

func (s *ScopedStore[T, PT]) getOn(db *gorm.DB, scope tenancy.Scope, id string, preload bool) (PT, error) {
	query, ok := s.scopedOn(db, scope)
	if !ok || !models.ValidID(id) {
		return nil, notFound(s.label)
	}
	if preload {
		for _, p := range s.spec.Preloads {
			query = query.Preload(p)
		}
	}

	entity := PT(new(T))
	err := query.Where(qualify(s.table, "id")+" = ?", id).Take(entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(s.label)
	}
	if err != nil {
		return nil, fmt.Errorf("%s store: get: %w", s.resource, err)
	}
	return entity, nil
}

// Create stamps the resolved organization and actor on entity, validates the
// supplied references and inserts it. after runs inside the same transaction.
func (s *ScopedStore[T, PT]) Create(ctx context.Context, scope tenancy.Scope, entity PT, refs []ReferenceCheck, after func(tx *gorm.DB) error) error {
	ctx = ensureContext(ctx)
	if scope.Organization == nil {
		return errOrganizationRequired
	}
	orgID := scope.Organization.ID
	entity.AssignTenant(orgID, scope.Actor())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkReferences(tx, orgID, refs...); err != nil {
			return err
		}
		if err := tx.Omit("Tags", "LineItems").Create(entity).Error; err != nil {
			return err
		}
		if after != nil {
			return after(tx)
		}
		return nil
	})
	if err != nil {
		return s.translate(err, "create")
	}

	scopedAudit(s.audit, ctx, scope, orgID, s.resource+".create", entity.GetID(), nil)
	return nil
}

// Update applies updates to a record visible to scope. Tenant columns in updates are ignored.
func (s *ScopedStore[T, PT]) Update(ctx context.Context, scope tenancy.Scope, id string, updates map[string]any, refs []ReferenceCheck, after func(tx *gorm.DB, entity PT) error) (PT, error) {
	ctx = ensureContext(ctx)
	for _, column := range protectedColumns {
		delete(updates, column)
	}

	var entity PT
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entity, err = s.getOn(tx, scope, id, false)
		if err != nil {
			return err
		}
		if err := checkReferences(tx, entity.TenantID(), refs...); err != nil {
			return err
		}
		if len(updates) > 0 {
			if err := tx.Model(entity).Updates(updates).Error; err != nil {
				return err
			}
		}
		if after != nil {
			return after(tx, entity)
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "update")
	}

	scopedAudit(s.audit, ctx, scope, entity.TenantID(), s.resource+".update", id, nil)
	return s.Get(ctx, scope, id)
}

// Delete removes a record visible to scope.
func (s *ScopedStore[T, PT]) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	ctx = ensureContext(ctx)
	entity, err := s.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	// Selecting Tags clears many2many join rows; models without tags ignore it.
	if err := s.db.WithContext(ctx).Select("Tags").Delete(entity).Error; err != nil {
		return fmt.Errorf("%s store: delete: %w", s.resource, err)
	}
	scopedAudit(s.audit, ctx, scope, entity.TenantID(), s.resource+".delete", id, nil)
	return nil
}

func (s *ScopedStore[T, PT]) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		return apperrors.NewValidation(s.label+" with these values already exists.", nil)
	}
	return fmt.Errorf("%s store: %s: %w", s.resource, verb, err)
}
