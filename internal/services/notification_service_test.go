package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

func TestNotificationCreateAndList(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")

	svc, err := NewNotificationService(f.db, nil, WithNotificationClock(fixedClock))
	require.NoError(t, err)

	created, err := svc.Create(f.ctx, CreateNotificationInput{
		UserID:         alice.ID,
		OrganizationID: &acme.ID,
		Type:           models.NotificationTaskAssigned,
		Title:          "Task assigned",
		Message:        "Call Carol back",
		Metadata:       map[string]any{"task_id": "t-1"},
	})
	require.NoError(t, err)
	require.False(t, created.IsRead)

	_, err = svc.Create(f.ctx, CreateNotificationInput{UserID: bob.ID, Title: "Hello"})
	require.NoError(t, err)

	page, err := svc.List(f.ctx, alice.ID, ListQuery{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
	require.Equal(t, created.ID, page.Items[0].ID)
	require.Equal(t, "t-1", page.Items[0].Metadata["task_id"])

	page, err = svc.List(f.ctx, bob.ID, ListQuery{Filters: map[string]string{"type": models.NotificationGeneric}})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)

	_, err = svc.Create(f.ctx, CreateNotificationInput{UserID: alice.ID, Type: "connection.failed"})
	require.Error(t, err)
	_, err = svc.Create(f.ctx, CreateNotificationInput{Type: models.NotificationGeneric})
	require.Error(t, err)
}

func TestNotificationReadState(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")

	svc, err := NewNotificationService(f.db, nil, WithNotificationClock(fixedClock))
	require.NoError(t, err)

	var ids []string
	for _, title := range []string{"one", "two", "three"} {
		n, err := svc.Create(f.ctx, CreateNotificationInput{UserID: alice.ID, Title: title})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}

	unread, err := svc.UnreadCount(f.ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, unread)

	read, err := svc.MarkRead(f.ctx, alice.ID, ids[0])
	require.NoError(t, err)
	require.True(t, read.IsRead)
	require.True(t, fixedNow.Equal(*read.ReadAt))

	_, err = svc.MarkRead(f.ctx, bob.ID, ids[1])
	requireAppError(t, err, apperrors.ErrNotFound.Code)

	page, err := svc.List(f.ctx, alice.ID, ListQuery{Filters: map[string]string{"unread": "true"}})
	require.NoError(t, err)
	require.EqualValues(t, 2, page.Total)

	marked, err := svc.MarkAllRead(f.ctx, alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, marked)

	unread, err = svc.UnreadCount(f.ctx, alice.ID)
	require.NoError(t, err)
	require.Zero(t, unread)

	require.NoError(t, svc.Delete(f.ctx, alice.ID, ids[2]))
	err = svc.Delete(f.ctx, alice.ID, ids[2])
	requireAppError(t, err, apperrors.ErrNotFound.Code)
}

func TestNotifyIsNilSafe(t *testing.T) {
	var svc *NotificationService
	require.NotPanics(t, func() {
		svc.Notify(t.Context(), CreateNotificationInput{UserID: "u-1"})
	})
}
