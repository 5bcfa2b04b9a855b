package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

func TestTeamMembershipLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	globex := f.organization(alice, "Globex")
	scope := f.scope(alice, acme)
	member := f.member(acme, bob, f.role(acme, models.RoleStaff))
	foreign := f.member(globex, bob, nil)

	teams, err := NewTeamService(f.db, f.audit, f.resolver)
	require.NoError(t, err)

	team, err := teams.Create(f.ctx, scope, CreateTeamInput{Name: " Sales ", Description: "Field sales"})
	require.NoError(t, err)
	require.Equal(t, "Sales", team.Name)
	require.Equal(t, acme.ID, team.OrganizationID)

	team, err = teams.AddMember(f.ctx, scope, team.ID, member.ID)
	require.NoError(t, err)
	require.Len(t, team.Members, 1)
	require.Equal(t, bob.ID, team.Members[0].UserID)

	_, err = teams.AddMember(f.ctx, scope, team.ID, member.ID)
	requireFieldError(t, err, "member")

	_, err = teams.AddMember(f.ctx, scope, team.ID, foreign.ID)
	requireFieldError(t, err, "member")

	team, err = teams.RemoveMember(f.ctx, scope, team.ID, member.ID)
	require.NoError(t, err)
	require.Empty(t, team.Members)

	_, err = teams.RemoveMember(f.ctx, scope, team.ID, member.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)
}

func TestTeamUpdateListAndDelete(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	acme := f.organization(alice, "Acme")
	globex := f.organization(alice, "Globex")
	scope := f.scope(alice, acme)

	teams, err := NewTeamService(f.db, f.audit, f.resolver)
	require.NoError(t, err)

	sales, err := teams.Create(f.ctx, scope, CreateTeamInput{Name: "Sales"})
	require.NoError(t, err)
	_, err = teams.Create(f.ctx, scope, CreateTeamInput{Name: "Support"})
	require.NoError(t, err)
	_, err = teams.Create(f.ctx, f.scope(alice, globex), CreateTeamInput{Name: "Sales"})
	require.NoError(t, err)

	_, err = teams.Create(f.ctx, scope, CreateTeamInput{Name: "Sales"})
	requireFieldError(t, err, "name")

	page, err := teams.List(f.ctx, scope, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Equal(t, "Sales", page.Items[0].Name)

	updated, err := teams.Update(f.ctx, scope, sales.ID, UpdateTeamInput{Name: ptr("Enterprise Sales")})
	require.NoError(t, err)
	require.Equal(t, "Enterprise Sales", updated.Name)

	_, err = teams.Update(f.ctx, scope, sales.ID, UpdateTeamInput{Name: ptr("  ")})
	requireFieldError(t, err, "name")

	require.NoError(t, teams.Delete(f.ctx, scope, sales.ID))
	_, err = teams.Get(f.ctx, scope, sales.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)
}

func TestTeamWritesRequireAdmin(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	f.member(acme, bob, f.role(acme, models.RoleStaff))

	teams, err := NewTeamService(f.db, f.audit, f.resolver)
	require.NoError(t, err)

	_, err = teams.Create(f.ctx, f.scope(bob, acme), CreateTeamInput{Name: "Sales"})
	requireAppError(t, err, apperrors.ErrPermissionDenied.Code)

	page, err := teams.List(f.ctx, f.scope(bob, acme), ListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}
