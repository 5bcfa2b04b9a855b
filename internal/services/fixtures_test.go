package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	audit, err := NewAuditService(db)
	require.NoError(t, err)
	resolver, err := tenancy.NewResolver(db)
	require.NoError(t, err)
	return &fixture{t: t, ctx: context.Background(), db: db, audit: audit, resolver: resolver}
}

func (f *fixture) user(email string) *models.User {
	f.t.Helper()
	user, err := createUser(f.db, newUserInput{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Password:  "Str0ngPassw0rd!",
	})
	require.NoError(f.t, err)
	return user
}

func (f *fixture) organization(owner *models.User, name string) *models.Organization {
	f.t.Helper()
	var org *models.Organization
	require.NoError(f.t, f.db.Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = createOrganization(tx, owner.ID, CreateOrganizationInput{Name: name}, fixedNow)
		return err
	}))
	return org
}

func (f *fixture) role(org *models.Organization, name string) *models.Role {
	f.t.Helper()
	var role models.Role
	require.NoError(f.t, f.db.Where("organization_id = ? AND name = ?", org.ID, name).Take(&role).Error)
	return &role
}

func (f *fixture) member(org *models.Organization, user *models.User, role *models.Role) *models.Membership {
	f.t.Helper()
	membership := &models.Membership{
		OrganizationID:     org.ID,
		UserID:             user.ID,
		JoinedAt:           fixedNow,
		IsActive:           true,
		InvitationAccepted: true,
	}
	if role != nil {
		membership.RoleID = stringPtr(role.ID)
	}
	require.NoError(f.t, f.db.Create(membership).Error)
	return membership
}

// scope resolves org for user the way the tenant middleware does.
func (f *fixture) scope(user *models.User, org *models.Organization) tenancy.Scope {
	f.t.Helper()
	ref := tenancy.Reference{}
	if org != nil {
		ref = tenancy.ID(org.ID)
	}
	scope, err := f.resolver.Scope(f.ctx, user.ID, ref)
	require.NoError(f.t, err)
	return scope
}

// listScope is the unresolved scope used by read paths.
func (f *fixture) listScope(user *models.User, org *models.Organization) tenancy.Scope {
	f.t.Helper()
	ref := tenancy.Reference{}
	if org != nil {
		ref = tenancy.ID(org.ID)
	}
	scope, err := f.resolver.ListScope(f.ctx, user.ID, ref)
	require.NoError(f.t, err)
	return scope
}

func requireAppError(t *testing.T, err error, code string) *apperrors.AppError {
	t.Helper()
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

func requireFieldError(t *testing.T, err error, field string) {
	t.Helper()
	appErr := requireAppError(t, err, apperrors.ErrValidation.Code)
	require.Contains(t, appErr.Details, field)
}

func ptr[T any](value T) *T {
	return &value
}
