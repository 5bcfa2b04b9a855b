package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// refuseQueries fails every later SELECT on db, so a test can show a value was
// turned away before any SQL ran.
func refuseQueries(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:refuse_queries", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("query issued"))
	}))
}

func TestDateOnlyUpperBoundCoversTheWholeDay(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	scope := c.scope(alice, acme)

	afternoon := c.contact(scope, "Carol", "carol@acme.test")
	nextMorning := c.contact(scope, "Dan", "dan@acme.test")
	require.NoError(t, c.db.Model(afternoon).UpdateColumn("created_at", time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC)).Error)
	require.NoError(t, c.db.Model(nextMorning).UpdateColumn("created_at", time.Date(2025, 3, 11, 8, 0, 0, 0, time.UTC)).Error)

	list := func(filters map[string]string) []string {
		t.Helper()
		page, err := c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Filters: filters})
		require.NoError(t, err)
		names := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			names = append(names, item.FirstName)
		}
		return names
	}

	require.Equal(t, []string{"Carol"}, list(map[string]string{"created_before": "2025-03-10"}))
	require.Equal(t, []string{"Dan"}, list(map[string]string{"created_after": "2025-03-11"}))
	require.Equal(t, []string{"Carol"}, list(map[string]string{"created_after": "2025-03-10", "created_before": "2025-03-10"}))
	require.Empty(t, list(map[string]string{"created_before": "2025-03-10T12:00:00Z"}))
}

func TestIDFiltersIgnoreMalformedValues(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	scope := c.scope(alice, acme)

	company, err := c.companies.Create(c.ctx, scope, CompanyInput{Name: ptr("Initech")})
	require.NoError(t, err)
	_, err = c.contacts.Create(c.ctx, scope, ContactInput{FirstName: ptr("Carol"), CompanyID: ptr(company.ID)})
	require.NoError(t, err)
	c.contact(scope, "Dan", "dan@acme.test")

	page, err := c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Filters: map[string]string{"company": "initech"}})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	page, err = c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{Filters: map[string]string{"company": "initech," + company.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "Carol", page.Items[0].FirstName)
}

func TestMalformedIDsNeverReachTheDatabase(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	c.contact(c.scope(alice, acme), "Carol", "carol@acme.test")

	scope := c.listScope(alice, nil)
	filtered := scope
	filtered.Filter = "acme"
	refuseQueries(t, c.db)

	page, err := c.contacts.List(c.ctx, filtered, ListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	require.Empty(t, page.Items)

	for _, id := range []string{"abc", "42", "not-a-uuid-at-all-but-thirty-six-ch"} {
		_, err = c.contacts.Get(c.ctx, scope, id)
		requireAppError(t, err, apperrors.ErrNotFound.Code)
		err = c.contacts.Delete(c.ctx, scope, id)
		requireAppError(t, err, apperrors.ErrNotFound.Code)
	}

	err = checkReferences(c.db, acme.ID, Ref("company", &models.Company{}, ptr("initech")))
	requireFieldError(t, err, "company")
}

func TestCursorPaginationWalksBothWays(t *testing.T) {
	c := newCRM(t)
	alice := c.user("alice@example.com")
	acme := c.organization(alice, "Acme")
	scope := c.scope(alice, acme)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"A", "B", "C", "D", "E"} {
		contact := c.contact(scope, name, name+"@acme.test")
		require.NoError(t, c.db.Model(contact).UpdateColumn("created_at", base.Add(time.Duration(i)*time.Hour)).Error)
	}

	list := func(cursor string) Page[models.Contact] {
		t.Helper()
		page, err := c.contacts.List(c.ctx, c.listScope(alice, nil), ListQuery{PerPage: 2, Page: 3, Cursor: &cursor})
		require.NoError(t, err)
		require.True(t, page.Cursor)
		require.Equal(t, 2, page.PerPage)
		return page
	}
	names := func(page Page[models.Contact]) []string {
		out := make([]string, 0, len(page.Items))
		for _, item := range page.Items {
			out = append(out, item.FirstName)
		}
		return out
	}

	first := list("")
	require.Equal(t, []string{"E", "D"}, names(first))
	require.Nil(t, first.Previous)
	require.NotNil(t, first.Next)

	second := list(*first.Next)
	require.Equal(t, []string{"C", "B"}, names(second))
	require.NotNil(t, second.Previous)
	require.NotNil(t, second.Next)

	last := list(*second.Next)
	require.Equal(t, []string{"A"}, names(last))
	require.Nil(t, last.Next)
	require.NotNil(t, last.Previous)

	back := list(*last.Previous)
	require.Equal(t, []string{"C", "B"}, names(back))
	require.NotNil(t, back.Next)
	require.NotNil(t, back.Previous)

	top := list(*back.Previous)
	require.Equal(t, []string{"E", "D"}, names(top))
	require.Nil(t, top.Previous)

	require.Equal(t, []string{"E", "D"}, names(list("not a cursor")))
}
