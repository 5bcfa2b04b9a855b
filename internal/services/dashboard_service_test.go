package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

func TestDashboardWidgetsOrderAndSearch(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	acme := f.organization(alice, "Acme")

	widgets, err := NewDashboardWidgetService(f.db, f.audit)
	require.NoError(t, err)
	scope := f.scope(alice, acme)

	_, err = widgets.Create(f.ctx, scope, DashboardWidgetInput{Title: ptr("Pipeline")})
	requireFieldError(t, err, "widget_type")
	_, err = widgets.Create(f.ctx, scope, DashboardWidgetInput{Title: ptr("Pipeline"), WidgetType: ptr("chart"), Order: ptr(-1)})
	requireFieldError(t, err, "order")

	pipeline, err := widgets.Create(f.ctx, scope, DashboardWidgetInput{
		Title:         ptr("Pipeline"),
		WidgetType:    ptr("chart"),
		Configuration: map[string]any{"metric": "amount"},
		Order:         ptr(2),
	})
	require.NoError(t, err)
	require.Equal(t, "amount", pipeline.Configuration["metric"])

	tasks, err := widgets.Create(f.ctx, scope, DashboardWidgetInput{Title: ptr("My tasks"), WidgetType: ptr("list")})
	require.NoError(t, err)
	require.Zero(t, tasks.Order)
	require.NotNil(t, tasks.Configuration)

	page, err := widgets.List(f.ctx, f.listScope(alice, nil), ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, tasks.ID, page.Items[0].ID)

	page, err = widgets.List(f.ctx, f.listScope(alice, nil), ListQuery{Ordering: "-order"})
	require.NoError(t, err)
	require.Equal(t, pipeline.ID, page.Items[0].ID)

	page, err = widgets.List(f.ctx, f.listScope(alice, nil), ListQuery{Search: "list"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	moved, err := widgets.Update(f.ctx, scope, tasks.ID, DashboardWidgetInput{Order: ptr(5)})
	require.NoError(t, err)
	require.Equal(t, 5, moved.Order)
}

func TestLayoutUniquenessAndMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	eve := f.user("eve@example.com")
	acme := f.organization(alice, "Acme")
	f.member(acme, bob, f.role(acme, models.RoleStaff))

	layouts, err := NewLayoutService(f.db, f.audit)
	require.NoError(t, err)
	scope := f.scope(alice, acme)

	_, err = layouts.Create(f.ctx, scope, LayoutInput{})
	requireFieldError(t, err, "page_type")
	_, err = layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr("kanban")})
	requireFieldError(t, err, "page_type")
	_, err = layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr(models.PageDashboard), UserID: ptr(eve.ID)})
	requireFieldError(t, err, "user")

	orgWide, err := layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr(models.PageDashboard), IsDefault: ptr(true)})
	require.NoError(t, err)
	require.Nil(t, orgWide.UserID)

	_, err = layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr(models.PageDashboard), IsDefault: ptr(true)})
	requireAppError(t, err, apperrors.ErrValidation.Code)

	mine, err := layouts.Create(f.ctx, scope, LayoutInput{
		PageType:      ptr(models.PageDashboard),
		UserID:        ptr(bob.ID),
		IsDefault:     ptr(true),
		Configuration: map[string]any{"columns": float64(3)},
	})
	require.NoError(t, err)
	require.Equal(t, bob.ID, *mine.UserID)

	_, err = layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr(models.PageDashboard), UserID: ptr(bob.ID), IsDefault: ptr(true)})
	requireAppError(t, err, apperrors.ErrValidation.Code)

	draft, err := layouts.Create(f.ctx, scope, LayoutInput{PageType: ptr(models.PageDashboard)})
	require.NoError(t, err)
	_, err = layouts.Update(f.ctx, scope, draft.ID, LayoutInput{IsDefault: ptr(true)})
	requireAppError(t, err, apperrors.ErrValidation.Code)
	_, err = layouts.Update(f.ctx, scope, draft.ID, LayoutInput{UserID: ptr(eve.ID)})
	requireFieldError(t, err, "user")

	page, err := layouts.List(f.ctx, f.listScope(alice, nil), ListQuery{Filters: map[string]string{"user": bob.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, mine.ID, page.Items[0].ID)

	page, err = layouts.List(f.ctx, f.listScope(alice, nil), ListQuery{Filters: map[string]string{"is_default": "true", "page_type": models.PageDashboard}})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
}
