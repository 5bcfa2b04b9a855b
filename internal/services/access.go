package services

import (
	"context"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

var errOwnerMembership = apperrors.NewPermissionDenied("Cannot modify the organization owner.")

func requireOrganization(scope tenancy.Scope) (*models.Organization, error) {
	if scope.Organization == nil {
		return nil, errOrganizationRequired
	}
	return scope.Organization, nil
}

// requireAdmin returns the scope's organization when the caller administers it.
func requireAdmin(ctx context.Context, resolver *tenancy.Resolver, scope tenancy.Scope) (*models.Organization, error) {
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	if err := resolver.EnsureAdmin(ctx, scope.UserID, org); err != nil {
		return nil, err
	}
	return org, nil
}
