package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/permissions"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// CreateRoleInput describes a custom role.
type CreateRoleInput struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleInput patches a role.
type UpdateRoleInput struct {
	Name        *string   `json:"name" validate:"omitempty,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions"`
}

// RoleService manages organization roles.
type RoleService struct {
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
}

// NewRoleService constructs a RoleService.
func NewRoleService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver) (*RoleService, error) {
	if db == nil {
		return nil, errors.New("role service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("role service: resolver is required")
	}
	return &RoleService{db: db, audit: audit, resolver: resolver}, nil
}

var roleListSpec = ListSpec{
	SearchFields: []string{"name", "description"},
	Filters:      map[string]string{"kind": "kind"},
	Orderings:    map[string]string{"name": "name", "created_at": "created_at"},
	DefaultOrder: "roles.name ASC",
}

// List returns the roles of the scope's organization.
func (s *RoleService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Role], error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return Page[models.Role]{}, err
	}
	query := s.db.WithContext(ctx).Model(&models.Role{}).Where("organization_id = ?", org.ID)
	page, err := paginate[models.Role](query, roleListSpec, "roles", q)
	if err != nil {
		return page, fmt.Errorf("role service: %w", err)
	}
	return page, nil
}

// Get loads one role of the scope's organization.
func (s *RoleService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Role, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx), org.ID, id)
}

func (s *RoleService) load(db *gorm.DB, organizationID, id string) (*models.Role, error) {
	var role models.Role
	err := db.Where("organization_id = ? AND id = ?", organizationID, strings.TrimSpace(id)).Take(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Role")
	}
	if err != nil {
		return nil, fmt.Errorf("role service: load role: %w", err)
	}
	return &role, nil
}

// Create adds a custom role. Admin only.
func (s *RoleService) Create(ctx context.Context, scope tenancy.Scope, input CreateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	perms, err := normalisePermissions(input.Permissions)
	if err != nil {
		return nil, err
	}

	role := &models.Role{
		OrganizationID: org.ID,
		Name:           strings.TrimSpace(input.Name),
		Description:    strings.TrimSpace(input.Description),
		Kind:           models.RoleKindCustom,
		Permissions:    perms,
	}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, s.translate(err, "create role")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "role.create", role.ID, map[string]any{"name": role.Name})
	return role, nil
}

// Update patches a role. System role names are fixed. Admin only.
func (s *RoleService) Update(ctx context.Context, scope tenancy.Scope, id string, input UpdateRoleInput) (*models.Role, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	role, err := s.load(s.db.WithContext(ctx), org.ID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		switch name := strings.TrimSpace(*input.Name); {
		case name == role.Name:
			// Resending the current name is a no-op, also for system roles.
		case role.IsSystem():
			return nil, apperrors.FieldError("name", "System role names cannot be modified.")
		case name == "":
			return nil, apperrors.FieldError("name", "This field may not be blank.")
		default:
			updates["name"] = name
		}
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Permissions != nil {
		perms, err := normalisePermissions(*input.Permissions)
		if err != nil {
			return nil, err
		}
		updates["permissions"] = perms
	}
	if len(updates) == 0 {
		return role, nil
	}

	if err := s.db.WithContext(ctx).Model(role).Updates(updates).Error; err != nil {
		return nil, s.translate(err, "update role")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "role.update", role.ID, nil)
	return s.load(s.db.WithContext(ctx), org.ID, id)
}

// Delete removes a custom role. Members and pending invitations holding it
// keep their membership with no role. Admin only.
func (s *RoleService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return err
	}

	var released int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		role, err := s.load(tx, org.ID, id)
		if err != nil {
			return err
		}
		if role.IsSystem() {
			return apperrors.NewPermissionDenied("System roles cannot be deleted.")
		}

		result := tx.Model(&models.Membership{}).
			Where("organization_id = ? AND role_id = ?", org.ID, role.ID).
			Update("role_id", nil)
		if result.Error != nil {
			return result.Error
		}
		released = result.RowsAffected

		if err := tx.Model(&models.Invitation{}).
			Where("organization_id = ? AND role_id = ?", org.ID, role.ID).
			Update("role_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(role).Error
	})
	if err != nil {
		return s.translate(err, "delete role")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "role.delete", id, map[string]any{"members_released": released})
	return nil
}

func normalisePermissions(ids []string) (datatypes.JSONSlice[string], error) {
	perms, err := permissions.Normalize(ids)
	if err != nil {
		if errors.Is(err, permissions.ErrUnknownPermission) {
			return nil, apperrors.FieldError("permissions", "Unknown permission: "+strings.TrimPrefix(err.Error(), permissions.ErrUnknownPermission.Error()+" ")+".")
		}
		return nil, err
	}
	return datatypes.JSONSlice[string](perms), nil
}

func (s *RoleService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		return uniqueViolation("name", "A role with this name already exists in the organization.")
	}
	return fmt.Errorf("role service: %s: %w", verb, err)
}
