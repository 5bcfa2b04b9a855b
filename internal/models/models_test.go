package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBaseModelBeforeCreateGeneratesID(t *testing.T) {
	var base BaseModel
	require.NoError(t, base.BeforeCreate(nil))
	require.NotEmpty(t, base.ID)

	preset := BaseModel{ID: "fixed"}
	require.NoError(t, preset.BeforeCreate(nil))
	require.Equal(t, "fixed", preset.ID)
}

func TestTenantModelsImplementTenantScoped(t *testing.T) {
	actor := "user-1"
	scoped := []TenantScoped{
		&Tag{}, &Company{}, &Contact{}, &Lead{}, &OpportunityStage{}, &Opportunity{},
		&Task{}, &Activity{}, &EmailTemplate{}, &Email{}, &EmailCampaign{},
		&CustomField{}, &Report{}, &ScheduledReport{},
	}
	for _, item := range scoped {
		item.AssignTenant("org-1", &actor)
		require.Equal(t, "org-1", item.TenantID())
	}

	contact := &Contact{}
	contact.AssignTenant("org-2", nil)
	require.Equal(t, "org-2", contact.OrganizationID)
	require.Nil(t, contact.CreatedByID)
}

func TestUserFullName(t *testing.T) {
	require.Equal(t, "Ada Lovelace", (&User{FirstName: " Ada ", LastName: "Lovelace"}).FullName())
	require.Equal(t, "Ada", (&User{FirstName: "Ada"}).FullName())
	require.Equal(t, "ada@example.com", (&User{Email: "ada@example.com"}).FullName())
}

func TestLineItemComputeTotal(t *testing.T) {
	item := OpportunityLineItem{Quantity: 4, UnitPrice: 25, DiscountPercent: 10}
	require.InDelta(t, 90.0, item.ComputeTotal(), 0.0001)
	require.InDelta(t, 90.0, item.Total, 0.0001)

	item = OpportunityLineItem{Quantity: 2, UnitPrice: 10}
	require.InDelta(t, 20.0, item.ComputeTotal(), 0.0001)
}

func TestScheduledReportAdvance(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

	daily := ScheduledReport{Frequency: FrequencyDaily, NextRunAt: now.Add(-50 * time.Hour)}
	daily.Advance(now)
	require.True(t, daily.NextRunAt.After(now))
	require.Equal(t, now.Add(-50*time.Hour).AddDate(0, 0, 3), daily.NextRunAt)

	weekly := ScheduledReport{Frequency: FrequencyWeekly, NextRunAt: now}
	weekly.Advance(now)
	require.Equal(t, now.AddDate(0, 0, 7), weekly.NextRunAt)

	monthly := ScheduledReport{Frequency: FrequencyMonthly}
	monthly.Advance(now)
	require.Equal(t, now.AddDate(0, 1, 0), monthly.NextRunAt)
}

func TestStatusHelpers(t *testing.T) {
	now := time.Now()
	require.True(t, (&Session{ExpiresAt: now.Add(time.Hour)}).Active(now))
	require.False(t, (&Session{ExpiresAt: now.Add(time.Hour), RevokedAt: &now}).Active(now))
	require.False(t, (&Session{ExpiresAt: now.Add(-time.Minute)}).Active(now))

	require.True(t, (&Invitation{Status: InvitationPending}).IsPending())
	require.False(t, (&Invitation{Status: InvitationAccepted}).IsPending())

	require.True(t, (&Role{Kind: RoleKindSystem}).IsSystem())
	require.False(t, (&Role{Kind: RoleKindCustom}).IsSystem())
}
