package tenancy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/metrics"
)

// AdminRoleNames lists role names that grant administrative rights.
var AdminRoleNames = []string{models.RoleAdmin}

var (
	errAccessDenied = apperrors.NewPermissionDenied("You do not have access to this organization.")
	errOrgNotFound  = apperrors.NewNotFound("Organization not found.")
)

// Resolver answers membership questions and resolves organization references.
type Resolver struct {
	db *gorm.DB
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("tenancy resolver: db is required")
	}
	return &Resolver{db: db}, nil
}

// Resolve returns the referenced organization after checking the caller may act
// on it. A zero reference yields (nil, nil).
func (r *Resolver) Resolve(ctx context.Context, userID string, ref Reference) (*models.Organization, error) {
	orgID := ref.Value()
	if orgID == "" {
		metrics.TenantResolutions.WithLabelValues("absent").Inc()
		return nil, nil
	}

	var org models.Organization
	err := gorm.ErrRecordNotFound
	if models.ValidID(orgID) {
		err = r.db.WithContext(ctx).Take(&org, "id = ?", orgID).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.TenantResolutions.WithLabelValues("not_found").Inc()
		return nil, errOrgNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenancy resolver: load organization: %w", err)
	}

	ok, err := r.UserInOrganization(ctx, userID, &org)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.TenantResolutions.WithLabelValues("denied").Inc()
		return nil, errAccessDenied
	}

	metrics.TenantResolutions.WithLabelValues("resolved").Inc()
	return &org, nil
}

// OrganizationIDsForUser returns organizations the user owns or holds an active membership in.
func (r *Resolver) OrganizationIDsForUser(ctx context.Context, userID string) ([]string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []string{}, nil
	}

	db := r.db.WithContext(ctx)
	memberOrgs := db.Model(&models.Membership{}).
		Select("organization_id").
		Where("user_id = ? AND is_active = ?", userID, true)

	var ids []string
	if err := db.Model(&models.Organization{}).
		Where("owner_id = ? OR id IN (?)", userID, memberOrgs).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("tenancy resolver: list organizations: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// UserInOrganization reports whether the user owns org or has an active membership in it.
func (r *Resolver) UserInOrganization(ctx context.Context, userID string, org *models.Organization) (bool, error) {
	if org == nil || strings.TrimSpace(userID) == "" {
		return false, nil
	}
	if org.OwnerID == userID {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Where("organization_id = ? AND user_id = ? AND is_active = ?", org.ID, userID, true).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("tenancy resolver: check membership: %w", err)
	}
	return count > 0, nil
}

// IsAdmin reports whether the user owns org or holds an active membership with an admin role.
func (r *Resolver) IsAdmin(ctx context.Context, userID string, org *models.Organization) (bool, error) {
	if org == nil || strings.TrimSpace(userID) == "" {
		return false, nil
	}
	if org.OwnerID == userID {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Membership{}).
		Joins("JOIN roles ON roles.id = memberships.role_id").
		Where("memberships.organization_id = ? AND memberships.user_id = ? AND memberships.is_active = ?", org.ID, userID, true).
		Where("roles.name IN ?", AdminRoleNames).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("tenancy resolver: check admin: %w", err)
	}
	return count > 0, nil
}

// EnsureAdmin returns PERMISSION_DENIED unless the user administers org.
func (r *Resolver) EnsureAdmin(ctx context.Context, userID string, org *models.Organization) error {
	ok, err := r.IsAdmin(ctx, userID, org)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.NewPermissionDenied("Only organization admins can perform this action.")
	}
	return nil
}

// EnsureMember validates that a referenced user belongs to org, reporting
// failures against field.
func (r *Resolver) EnsureMember(ctx context.Context, org *models.Organization, userID *string, field string) error {
	if userID == nil || strings.TrimSpace(*userID) == "" {
		return nil
	}
	ok, err := r.UserInOrganization(ctx, *userID, org)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.FieldError(field, "User must belong to the same organization.")
	}
	return nil
}

// Scope resolves ref and returns the caller's full tenant boundary.
func (r *Resolver) Scope(ctx context.Context, userID string, ref Reference) (Scope, error) {
	ids, err := r.OrganizationIDsForUser(ctx, userID)
	if err != nil {
		return Scope{}, err
	}
	org, err := r.Resolve(ctx, userID, ref)
	if err != nil {
		return Scope{}, err
	}
	return Scope{UserID: userID, OrganizationIDs: ids, Filter: ref.Value(), Organization: org}, nil
}

// ListScope builds a scope for read paths. The reference only narrows results
// and is not validated, so an unknown or foreign organization yields an empty
// listing rather than an error.
func (r *Resolver) ListScope(ctx context.Context, userID string, ref Reference) (Scope, error) {
	ids, err := r.OrganizationIDsForUser(ctx, userID)
	if err != nil {
		return Scope{}, err
	}
	return Scope{UserID: userID, OrganizationIDs: ids, Filter: ref.Value()}, nil
}
