package tenancy

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

type fixture struct {
	db       *gorm.DB
	resolver *Resolver
	owner    models.User
	admin    models.User
	staff    models.User
	outsider models.User
	org      models.Organization
	other    models.Organization
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	f := &fixture{db: db, resolver: resolver}
	f.owner = createUser(t, db, "owner@example.com")
	f.admin = createUser(t, db, "admin@example.com")
	f.staff = createUser(t, db, "staff@example.com")
	f.outsider = createUser(t, db, "outsider@example.com")

	f.org = models.Organization{Name: "Acme", Slug: "acme", OwnerID: f.owner.ID}
	require.NoError(t, db.Create(&f.org).Error)
	f.other = models.Organization{Name: "Globex", Slug: "globex", OwnerID: f.outsider.ID}
	require.NoError(t, db.Create(&f.other).Error)

	adminRole := models.Role{OrganizationID: f.org.ID, Name: models.RoleAdmin, Kind: models.RoleKindSystem}
	staffRole := models.Role{OrganizationID: f.org.ID, Name: models.RoleStaff, Kind: models.RoleKindSystem}
	require.NoError(t, db.Create(&adminRole).Error)
	require.NoError(t, db.Create(&staffRole).Error)

	require.NoError(t, db.Create(&models.Membership{OrganizationID: f.org.ID, UserID: f.admin.ID, RoleID: &adminRole.ID, IsActive: true}).Error)
	require.NoError(t, db.Create(&models.Membership{OrganizationID: f.org.ID, UserID: f.staff.ID, RoleID: &staffRole.ID, IsActive: true}).Error)
	return f
}

func createUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func TestReferencePrecedence(t *testing.T) {
	require.Equal(t, "body", Reference{Body: "body", Query: "query", Path: "path"}.Value())
	require.Equal(t, "query", Reference{Query: " query ", Path: "path"}.Value())
	require.Equal(t, "path", Reference{Path: "path"}.Value())
	require.True(t, Reference{Body: "  "}.IsZero())
}

func TestResolveAuthorizesOwnerAndMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, user := range []models.User{f.owner, f.admin, f.staff} {
		org, err := f.resolver.Resolve(ctx, user.ID, ID(f.org.ID))
		require.NoError(t, err)
		require.Equal(t, f.org.ID, org.ID)
	}

	org, err := f.resolver.Resolve(ctx, f.owner.ID, Reference{})
	require.NoError(t, err)
	require.Nil(t, org)
}

func TestResolveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.resolver.Resolve(ctx, f.owner.ID, ID("00000000-0000-0000-0000-000000000000"))
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.resolver.Resolve(ctx, f.outsider.ID, ID(f.org.ID))
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)
}

func TestInactiveMembershipLosesAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.db.Model(&models.Membership{}).
		Where("user_id = ?", f.staff.ID).
		Update("is_active", false).Error)

	_, err := f.resolver.Resolve(ctx, f.staff.ID, ID(f.org.ID))
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	ids, err := f.resolver.OrganizationIDsForUser(ctx, f.staff.ID)
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestOrganizationIDsForUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ids, err := f.resolver.OrganizationIDsForUser(ctx, f.outsider.ID)
	require.NoError(t, err)
	require.Equal(t, []string{f.other.ID}, ids)

	require.NoError(t, f.db.Create(&models.Membership{OrganizationID: f.other.ID, UserID: f.staff.ID, IsActive: true}).Error)
	ids, err = f.resolver.OrganizationIDsForUser(ctx, f.staff.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{f.org.ID, f.other.ID}, ids)

	ids, err = f.resolver.OrganizationIDsForUser(ctx, "")
	require.NoError(t, err)
	require.Empty(t, ids)
}

func TestIsAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]bool{
		f.owner.ID:    true,
		f.admin.ID:    true,
		f.staff.ID:    false,
		f.outsider.ID: false,
	}
	for userID, want := range cases {
		got, err := f.resolver.IsAdmin(ctx, userID, &f.org)
		require.NoError(t, err)
		require.Equal(t, want, got, userID)
	}

	require.NoError(t, f.resolver.EnsureAdmin(ctx, f.admin.ID, &f.org))
	require.ErrorIs(t, f.resolver.EnsureAdmin(ctx, f.staff.ID, &f.org), apperrors.ErrPermissionDenied)
}

func TestEnsureMemberNamesField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.resolver.EnsureMember(ctx, &f.org, &f.staff.ID, "owner"))
	require.NoError(t, f.resolver.EnsureMember(ctx, &f.org, nil, "owner"))

	err := f.resolver.EnsureMember(ctx, &f.org, &f.outsider.ID, "assigned_to")
	require.ErrorIs(t, err, apperrors.ErrValidation)
	appErr := apperrors.FromError(err)
	require.Contains(t, appErr.Details, "assigned_to")
}

func TestScopeAndListScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scope, err := f.resolver.Scope(ctx, f.staff.ID, ID(f.org.ID))
	require.NoError(t, err)
	require.Equal(t, f.org.ID, scope.OrganizationID())
	require.True(t, scope.Allows(f.org.ID))
	require.False(t, scope.Allows(f.other.ID))
	require.Equal(t, f.staff.ID, *scope.Actor())

	list, err := f.resolver.ListScope(ctx, f.staff.ID, Reference{Query: f.other.ID})
	require.NoError(t, err)
	require.Nil(t, list.Organization)
	require.Equal(t, f.other.ID, list.Filter)
	require.Equal(t, []string{f.org.ID}, list.OrganizationIDs)
}

func TestLookupMemoizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lookup := NewLookup(f.resolver, f.staff.ID, ID(f.org.ID))
	first, err := lookup.Organization(ctx)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Organization{}).Where("id = ?", f.org.ID).Update("name", "Renamed").Error)

	second, err := lookup.Organization(ctx)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, "Acme", second.Name)

	denied := NewLookup(f.resolver, f.outsider.ID, ID(f.org.ID))
	_, err = denied.Scope(ctx)
	require.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	scope, err := denied.ListScope(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{f.other.ID}, scope.OrganizationIDs)
}

func TestResolveMalformedReferenceIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.Callback().Query().Before("gorm:query").Register("test:refuse_queries", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("query issued"))
	}))

	refs := []Reference{
		{Body: "acme"},
		{Query: "42"},
		{Path: "org-" + f.org.ID},
		ID(strings.ReplaceAll(f.org.ID, "-", "")),
	}
	for _, ref := range refs {
		org, err := f.resolver.Resolve(ctx, f.owner.ID, ref)
		require.Nil(t, org)
		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr, ref.Value())
		require.Equal(t, apperrors.ErrNotFound.Code, appErr.Code)
		require.Equal(t, "Organization not found.", appErr.Message)
	}
}
