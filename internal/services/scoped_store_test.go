package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

type crm struct {
	*fixture
	companies *CompanyService
	contacts  *ContactService
}

func newCRM(t *testing.T) *crm {
	t.Helper()
	f := newFixture(t)
	companies, err := NewCompanyService(f.db, f.audit)
	require.NoError(t, err)
	contacts, err := NewContactService(f.db, f.audit)
	require.NoError(t, err)
	return &crm{fixture: f, companies: companies, contacts: contacts}
}

func (c *crm) contact(scope tenancy.Scope, firstName, email string) *models.Contact {
	c.t.Helper()
	contact, err := c.contacts.Create(c.ctx, scope, ContactInput{FirstName: ptr(firstName), Email: ptr(email)})
	require.NoError(c.t, err)
	return contact
}

func TestScopedListExcludesForeignOrganizations(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	bob := c.user("bob@example.com")
	acme := c.organization(alice, "Acme")
	c.organization(bob, "Bobco")

	c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")
	c.contact(c.scope(alice, acme), "Dan", "dan@acme.test")

	page, err := c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	// Bob asks for his own organizations only; Acme's rows never show up.
	page, err = c.contacts.List(c.ctx, c.listScope(bob, nil), ListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Empty(t, page.Items)
}

func TestScopedListWithForeignOrganizationReference(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	bob := c.user("bob@example.com")
	acme := c.organization(alice, "Acme")
	c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")

	page, err := c.contacts.List(c.ctx, c.listScope(bob, acme), ListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Empty(t, page.Items)
}

func TestScopedStoreHidesForeignRecords(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	bob := c.user("bob@example.com")
	acme := c.organization(alice, "Acme")
	contact := c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")
	outsider := c.listScope(bob, nil)

	_, err := c.contacts.Get(c.ctx, outsider, contact.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)

	_, err = c.contacts.Update(c.ctx, outsider, contact.ID, ContactInput{FirstName: ptr("Mallory")})
	requireAppError(t, err, apperrors.ErrNotFound.Code)

	err = c.contacts.Delete(c.ctx, outsider, contact.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)

	stored, err := c.contacts.Get(c.ctx, c.listScope(alice, nil), contact.ID)
	require.NoError(t, err)
	require.Equal(t, "Carol", stored.FirstName)
}

func TestScopedStoreNarrowsToReferencedOrganization(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	globex := c.organization(alice, "Globex")
	c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")
	c.contact(c.scope(alice, globex), "Gina", "gina@globex.test")

	page, err := c.contacts.List(c.ctx, c.listScope(alice, globex), ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "Gina", page.Items[0].FirstName)
	require.Equal(t, globex.ID, page.Items[0].OrganizationID)
}

func TestScopedCreateStampsResolvedOrganization(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")

	contact := c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")
	require.Equal(t, acme.ID, contact.OrganizationID)
	require.NotNil(t, contact.CreatedByID)
	require.Equal(t, alice.ID, *contact.CreatedByID)

	// Organization columns in an update payload are ignored.
	_, err := c.contacts.Update(c.ctx, c.scope(alice, acme), contact.ID, ContactInput{LastName: ptr("Jones")})
	require.NoError(t, err)
	var stored models.Contact
	require.NoError(t, c.db.Take(&stored, "id = ?", contact.ID).Error)
	require.Equal(t, acme.ID, stored.OrganizationID)
	require.Equal(t, "Jones", stored.LastName)
}

func TestScopedCreateRequiresOrganization(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	c.organization(alice, "Acme")

	_, err := c.contacts.Create(c.ctx, c.scope(alice, nil), ContactInput{FirstName: ptr("Carol")})
	requireFieldError(t, err, "organization")

	var count int64
	require.NoError(t, c.db.Model(&models.Contact{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestScopedCreateRejectsNonMember(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	bob := c.user("bob@example.com")
	acme := c.organization(alice, "Acme")

	_, err := c.resolver.Scope(c.ctx, bob.ID, tenancy.ID(acme.ID))
	requireAppError(t, err, apperrors.ErrPermissionDenied.Code)
}

func TestCrossOrganizationReferenceIsRejected(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	globex := c.organization(alice, "Globex")

	foreign, err := c.companies.Create(c.ctx, c.scope(alice, globex), CompanyInput{Name: ptr("Globex Holdings")})
	require.NoError(t, err)
	contact := c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")

	_, err = c.contacts.Update(c.ctx, c.scope(alice, acme), contact.ID, ContactInput{CompanyID: ptr(foreign.ID)})
	requireFieldError(t, err, "company")

	_, err = c.contacts.Create(c.ctx, c.scope(alice, acme), ContactInput{FirstName: ptr("Eve"), CompanyID: ptr(foreign.ID)})
	requireFieldError(t, err, "company")

	local, err := c.companies.Create(c.ctx, c.scope(alice, acme), CompanyInput{Name: ptr("Acme Labs")})
	require.NoError(t, err)
	updated, err := c.contacts.Update(c.ctx, c.scope(alice, acme), contact.ID, ContactInput{CompanyID: ptr(local.ID)})
	require.NoError(t, err)
	require.Equal(t, local.ID, *updated.CompanyID)
}

func TestOwnerReferenceMustBeMember(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	bob := c.user("bob@example.com")
	acme := c.organization(alice, "Acme")

	_, err := c.companies.Create(c.ctx, c.scope(alice, acme), CompanyInput{Name: ptr("Initech"), OwnerID: ptr(bob.ID)})
	requireFieldError(t, err, "owner")

	c.member(acme, bob, c.role(acme, models.RoleStaff))
	company, err := c.companies.Create(c.ctx, c.scope(alice, acme), CompanyInput{Name: ptr("Initech"), OwnerID: ptr(bob.ID)})
	require.NoError(t, err)
	require.Equal(t, bob.ID, *company.OwnerID)
}

func TestCompanyCannotParentItself(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	scope := c.scope(alice, acme)

	company, err := c.companies.Create(c.ctx, scope, CompanyInput{Name: ptr("Initech")})
	require.NoError(t, err)

	_, err = c.companies.Update(c.ctx, scope, company.ID, CompanyInput{ParentCompanyID: ptr(company.ID)})
	requireFieldError(t, err, "parent_company")
}

func TestListQuerySearchFilterAndOrdering(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	scope := c.scope(alice, acme)

	c.contact(scope, "Carol", "carol@acme.test")
	c.contact(scope, "Dan", "dan@acme.test")
	customer, err := c.contacts.Create(c.ctx, scope, ContactInput{FirstName: ptr("Erin"), Stage: ptr(models.ContactStageCustomer)})
	require.NoError(t, err)

	page, err := c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Search: "dan"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "Dan", page.Items[0].FirstName)

	page, err = c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Filters: map[string]string{"stage": "customer"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, customer.ID, page.Items[0].ID)

	page, err = c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Ordering: "-first_name"})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.Equal(t, "Erin", page.Items[0].FirstName)
	require.Equal(t, "Carol", page.Items[2].FirstName)

	page, err = c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Page: 2, PerPage: 2, Ordering: "first_name"})
	require.NoError(t, err)
	require.EqualValues(t, 3, page.Total)
	require.Len(t, page.Items, 1)
	require.Equal(t, "Erin", page.Items[0].FirstName)
}
