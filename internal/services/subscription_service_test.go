package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

func TestSubscriptionPlanChange(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	f.member(acme, bob, f.role(acme, models.RoleStaff))

	subs, err := NewSubscriptionService(f.db, f.audit, f.resolver)
	require.NoError(t, err)

	sub, err := subs.Get(f.ctx, f.scope(bob, acme))
	require.NoError(t, err)
	require.Equal(t, models.PlanStarter, sub.Plan)
	require.Equal(t, models.DefaultUserLimit, sub.UserLimit)

	_, err = subs.Update(f.ctx, f.scope(bob, acme), UpdateSubscriptionInput{Plan: ptr(models.PlanProfessional)})
	requireAppError(t, err, apperrors.ErrPermissionDenied.Code)

	_, err = subs.Update(f.ctx, f.scope(alice, acme), UpdateSubscriptionInput{Plan: ptr("platinum")})
	requireAppError(t, err, apperrors.ErrValidation.Code)

	sub, err = subs.Update(f.ctx, f.scope(alice, acme), UpdateSubscriptionInput{
		Plan:         ptr(models.PlanProfessional),
		BillingCycle: ptr(models.BillingYearly),
	})
	require.NoError(t, err)
	require.Equal(t, models.PlanProfessional, sub.Plan)
	require.Equal(t, models.BillingYearly, sub.BillingCycle)
	require.Equal(t, 50, sub.UserLimit)
	require.Equal(t, models.SubscriptionTrialing, sub.Status)

	require.Len(t, Plans(), 3)
}

func TestSubscriptionUpgradeCancelReactivate(t *testing.T) {
	f := newFixture(t)
	alice := f.user("alice@example.com")
	bob := f.user("bob@example.com")
	acme := f.organization(alice, "Acme")
	f.member(acme, bob, f.role(acme, models.RoleStaff))

	now := time.Date(2025, 3, 10, 17, 45, 0, 0, time.UTC)
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	subs, err := NewSubscriptionService(f.db, f.audit, f.resolver, WithSubscriptionClock(func() time.Time { return now }))
	require.NoError(t, err)
	admin := f.scope(alice, acme)

	_, err = subs.Upgrade(f.ctx, f.scope(bob, acme), ChangePlanInput{Plan: models.PlanEnterprise, BillingCycle: models.BillingMonthly})
	requireAppError(t, err, apperrors.ErrPermissionDenied.Code)
	_, err = subs.Cancel(f.ctx, f.scope(bob, acme))
	requireAppError(t, err, apperrors.ErrPermissionDenied.Code)
	_, err = subs.Upgrade(f.ctx, admin, ChangePlanInput{Plan: models.PlanEnterprise})
	requireFieldError(t, err, "billing_cycle")

	sub, err := subs.Upgrade(f.ctx, admin, ChangePlanInput{Plan: models.PlanEnterprise, BillingCycle: models.BillingMonthly})
	require.NoError(t, err)
	require.Equal(t, models.PlanEnterprise, sub.Plan)
	require.Equal(t, models.SubscriptionActive, sub.Status)
	require.Equal(t, 500, sub.UserLimit)
	require.True(t, today.Equal(*sub.CurrentPeriodStart))
	require.True(t, today.AddDate(0, 0, 30).Equal(*sub.CurrentPeriodEnd))

	sub, err = subs.Cancel(f.ctx, admin)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionCanceled, sub.Status)
	require.True(t, today.Equal(*sub.CurrentPeriodEnd))
	require.Equal(t, 500, sub.UserLimit)

	now = now.AddDate(0, 1, 0)
	sub, err = subs.Update(f.ctx, admin, UpdateSubscriptionInput{BillingCycle: ptr(models.BillingYearly)})
	require.NoError(t, err)
	sub, err = subs.Reactivate(f.ctx, admin)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionActive, sub.Status)
	reactivated := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)
	require.True(t, reactivated.Equal(*sub.CurrentPeriodStart))
	require.True(t, reactivated.AddDate(0, 0, 365).Equal(*sub.CurrentPeriodEnd))
}
