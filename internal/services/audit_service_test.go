package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/auditctx"
	"github.com/charlesng35/crmhub/internal/models"
)

func TestAuditLogListIsPerOrganization(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	acme := f.organization(alice, "Acme")
	globex := f.organization(alice, "Globex")

	for _, entry := range []AuditEntry{
		{OrganizationID: &acme.ID, UserID: &alice.ID, Email: "Alice@Example.com", Action: "contact.create", Resource: "c-1", Result: AuditSuccess, Metadata: map[string]any{"first_name": "Carol"}},
		{OrganizationID: &acme.ID, UserID: &alice.ID, Action: "contact.delete", Resource: "c-1", Result: AuditDenied},
		{OrganizationID: &globex.ID, UserID: &alice.ID, Action: "contact.create", Resource: "c-2", Result: AuditSuccess},
		{UserID: &alice.ID, Action: "auth.login", Result: AuditSuccess},
	} {
		require.NoError(t, f.audit.Log(f.ctx, entry))
	}

	page, err := f.audit.List(f.ctx, acme.ID, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)
	for _, log := range page.Items {
		require.Equal(t, acme.ID, *log.OrganizationID)
	}

	page, err = f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"action": "contact.create"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, "alice@example.com", page.Items[0].Email)
	require.Equal(t, "Carol", page.Items[0].Metadata["first_name"])

	page, err = f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"result": AuditDenied, "user_id": alice.ID}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	page, err = f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"action": "contact.create,contact.delete"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	page, err = f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"since": future}})
	require.NoError(t, err)
	require.Zero(t, page.Total)

	page, err = f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"created_after": future}})
	require.NoError(t, err)
	require.Zero(t, page.Total)
}

func TestAuditLogPicksUpRequestActor(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	acme := f.organization(alice, "Acme")

	ctx := auditctx.WithActor(f.ctx, auditctx.Actor{
		UserID:    alice.ID,
		Email:     "alice@example.com",
		IPAddress: "203.0.113.7",
		UserAgent: "crm-client/1.0",
		RequestID: "01HZX3V7Q0",
	})
	require.NoError(t, f.audit.Log(ctx, AuditEntry{OrganizationID: &acme.ID, UserID: &alice.ID, Action: "tag.create", Result: AuditSuccess}))

	page, err := f.audit.List(f.ctx, acme.ID, ListQuery{Filters: map[string]string{"action": "tag.create"}})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	logs := page.Items
	require.Equal(t, "203.0.113.7", logs[0].IPAddress)
	require.Equal(t, "crm-client/1.0", logs[0].UserAgent)
	require.Equal(t, "alice@example.com", logs[0].Email)
	require.Equal(t, "01HZX3V7Q0", logs[0].Metadata["request_id"])
}

func TestAuditLogRequiresActionAndResult(t *testing.T) {
	f := newFixture(t)

	require.Error(t, f.audit.Log(f.ctx, AuditEntry{Result: AuditSuccess}))
	require.Error(t, f.audit.Log(f.ctx, AuditEntry{Action: "contact.create"}))
}

func TestAuditCleanupOlderThan(t *testing.T) {
	f := newFixture(t)

	old := models.AuditLog{Action: "old.action", Result: AuditSuccess, CreatedAt: time.Now().AddDate(0, 0, -10)}
	recent := models.AuditLog{Action: "recent.action", Result: AuditSuccess}
	require.NoError(t, f.db.Create(&old).Error)
	require.NoError(t, f.db.Create(&recent).Error)

	rows, err := f.audit.CleanupOlderThan(f.ctx, 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	var remaining []models.AuditLog
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, "recent.action", remaining[0].Action)

	_, err = f.audit.CleanupOlderThan(f.ctx, 0)
	require.Error(t, err)
}
