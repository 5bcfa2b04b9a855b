package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

func TestWebhookLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	f.organization(bob, "Bobco")

	webhooks, err := NewWebhookService(f.db, f.audit)
	require.NoError(t, err)
	scope := f.scope(alice, acme)

	_, err = webhooks.Create(f.ctx, scope, WebhookInput{Name: ptr("Deals")})
	requireFieldError(t, err, "url")
	_, err = webhooks.Create(f.ctx, scope, WebhookInput{Name: ptr("Deals"), URL: ptr("not a url")})
	requireFieldError(t, err, "url")

	deals, err := webhooks.Create(f.ctx, scope, WebhookInput{
		Name:   ptr("Deals"),
		URL:    ptr("https://hooks.example.com/deals"),
		Events: &[]string{"opportunity.won", " ", "opportunity.lost"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, deals.Secret)
	require.True(t, deals.IsActive)
	require.Equal(t, []string{"opportunity.won", "opportunity.lost"}, []string(deals.Events))

	paused, err := webhooks.Create(f.ctx, scope, WebhookInput{
		Name:     ptr("Audit"),
		URL:      ptr("https://hooks.example.com/audit"),
		Secret:   ptr("shh"),
		IsActive: ptr(false),
	})
	require.NoError(t, err)
	require.Equal(t, "shh", paused.Secret)
	require.False(t, paused.IsActive)

	page, err := webhooks.List(f.ctx, f.listScope(alice, nil), ListQuery{Filters: map[string]string{"is_active": "true"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "Deals", page.Items[0].Name)

	page, err = webhooks.List(f.ctx, f.listScope(alice, nil), ListQuery{Search: "AUDIT"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	page, err = webhooks.List(f.ctx, f.listScope(bob, nil), ListQuery{})
	require.NoError(t, err)
	require.Zero(t, page.Total)
	_, err = webhooks.Get(f.ctx, f.listScope(bob, nil), deals.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)

	updated, err := webhooks.Update(f.ctx, scope, deals.ID, WebhookInput{IsActive: ptr(false), Events: &[]string{"contact.created"}})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, []string{"contact.created"}, []string(updated.Events))
	_, err = webhooks.Update(f.ctx, scope, deals.ID, WebhookInput{URL: ptr(" ")})
	requireFieldError(t, err, "url")

	require.NoError(t, webhooks.Delete(f.ctx, scope, deals.ID))
	_, err = webhooks.Get(f.ctx, scope, deals.ID)
	requireAppError(t, err, apperrors.ErrNotFound.Code)
}

func TestIntegrationKeysAreGloballyUnique(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	bobco := f.organization(bob, "Bobco")

	keys, err := NewIntegrationKeyService(f.db, f.audit)
	require.NoError(t, err)

	generated, err := keys.Create(f.ctx, f.scope(alice, acme), IntegrationKeyInput{Name: ptr("Zapier")})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(generated.Key), 40)
	require.Nil(t, generated.LastUsedAt)
	require.Empty(t, generated.Permissions)

	explicit, err := keys.Create(f.ctx, f.scope(alice, acme), IntegrationKeyInput{
		Name:        ptr("Warehouse"),
		Key:         ptr("warehouse-key-0001"),
		Permissions: &[]string{"contacts.read"},
	})
	require.NoError(t, err)
	require.Equal(t, "warehouse-key-0001", explicit.Key)

	_, err = keys.Create(f.ctx, f.scope(bob, bobco), IntegrationKeyInput{Name: ptr("Copy"), Key: ptr("warehouse-key-0001")})
	requireFieldError(t, err, "key")
	_, err = keys.Update(f.ctx, f.scope(alice, acme), generated.ID, IntegrationKeyInput{Key: ptr("warehouse-key-0001")})
	requireFieldError(t, err, "key")

	same, err := keys.Update(f.ctx, f.scope(alice, acme), explicit.ID, IntegrationKeyInput{Key: ptr("warehouse-key-0001"), IsActive: ptr(false)})
	require.NoError(t, err)
	require.False(t, same.IsActive)

	page, err := keys.List(f.ctx, f.listScope(alice, nil), ListQuery{Search: "warehouse-key"})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	page, err = keys.List(f.ctx, f.listScope(alice, nil), ListQuery{Filters: map[string]string{"is_active": "false"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, explicit.ID, page.Items[0].ID)
}
