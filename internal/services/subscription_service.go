package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
)

// Plan describes one subscription tier.
type Plan struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	UserLimit    int     `json:"user_limit"`
	MonthlyPrice float64 `json:"monthly_price"`
	YearlyPrice  float64 `json:"yearly_price"`
}

var plans = []Plan{
	{ID: models.PlanStarter, Name: "Starter", UserLimit: 10, MonthlyPrice: 29, YearlyPrice: 290},
	{ID: models.PlanProfessional, Name: "Professional", UserLimit: 50, MonthlyPrice: 99, YearlyPrice: 990},
	{ID: models.PlanEnterprise, Name: "Enterprise", UserLimit: 500, MonthlyPrice: 299, YearlyPrice: 2990},
}

// Plans returns the plan catalog.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func planByID(id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}

// UpdateSubscriptionInput changes plan or billing cycle. Status and dates are
// owned by billing and cannot be patched.
type UpdateSubscriptionInput struct {
	Plan         *string `json:"plan" validate:"omitempty,oneof=starter professional enterprise"`
	BillingCycle *string `json:"billing_cycle" validate:"omitempty,oneof=monthly yearly"`
}

// ChangePlanInput is the body of an upgrade. Both fields are required.
type ChangePlanInput struct {
	Plan         string `json:"plan" validate:"required,oneof=starter professional enterprise"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

// SubscriptionOption customises SubscriptionService.
type SubscriptionOption func(*SubscriptionService)

// WithSubscriptionClock injects a custom clock.
func WithSubscriptionClock(clock func() time.Time) SubscriptionOption {
	return func(s *SubscriptionService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SubscriptionService exposes the subscription of an organization.
type SubscriptionService struct {
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
	now      func() time.Time
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver, opts ...SubscriptionOption) (*SubscriptionService, error) {
	if db == nil {
		return nil, errors.New("subscription service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("subscription service: resolver is required")
	}
	svc := &SubscriptionService{db: db, audit: audit, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Get returns the subscription of the scope's organization.
func (s *SubscriptionService) Get(ctx context.Context, scope tenancy.Scope) (*models.Subscription, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx), org.ID)
}

func (s *SubscriptionService) load(db *gorm.DB, organizationID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := db.Where("organization_id = ?", organizationID).Take(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Subscription")
	}
	if err != nil {
		return nil, fmt.Errorf("subscription service: load: %w", err)
	}
	return &sub, nil
}

// Update changes plan and billing cycle. A plan change resets the user limit
// to the plan's allowance. Admin only.
func (s *SubscriptionService) Update(ctx context.Context, scope tenancy.Scope, input UpdateSubscriptionInput) (*models.Subscription, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	sub, err := s.load(s.db.WithContext(ctx), org.ID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Plan != nil {
		plan, _ := planByID(*input.Plan)
		updates["plan"] = plan.ID
		updates["user_limit"] = plan.UserLimit
	}
	if input.BillingCycle != nil {
		updates["billing_cycle"] = *input.BillingCycle
	}
	if len(updates) == 0 {
		return sub, nil
	}

	if err := s.db.WithContext(ctx).Model(sub).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("subscription service: update: %w", err)
	}
	scopedAudit(s.audit, ctx, scope, org.ID, "subscription.update", sub.ID, updates)
	return s.load(s.db.WithContext(ctx), org.ID)
}

// Upgrade moves the organization onto plan and starts a fresh billing period
// from today. The user limit follows the plan. Admin only.
func (s *SubscriptionService) Upgrade(ctx context.Context, scope tenancy.Scope, input ChangePlanInput) (*models.Subscription, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	plan, _ := planByID(input.Plan)
	start, end := s.billingPeriod(input.BillingCycle)
	return s.transition(ctx, scope, "subscription.upgrade", func(*models.Subscription) map[string]any {
		return map[string]any{
			"plan":                 plan.ID,
			"billing_cycle":        input.BillingCycle,
			"status":               models.SubscriptionActive,
			"current_period_start": start,
			"current_period_end":   end,
			"user_limit":           plan.UserLimit,
		}
	})
}

// Cancel marks the subscription canceled and ends the current period today.
// Admin only.
func (s *SubscriptionService) Cancel(ctx context.Context, scope tenancy.Scope) (*models.Subscription, error) {
	today, _ := s.billingPeriod(models.BillingMonthly)
	return s.transition(ctx, scope, "subscription.cancel", func(*models.Subscription) map[string]any {
		return map[string]any{
			"status":             models.SubscriptionCanceled,
			"current_period_end": today,
		}
	})
}

// Reactivate makes the subscription active again with a new period on its
// current billing cycle. Admin only.
func (s *SubscriptionService) Reactivate(ctx context.Context, scope tenancy.Scope) (*models.Subscription, error) {
	return s.transition(ctx, scope, "subscription.reactivate", func(sub *models.Subscription) map[string]any {
		start, end := s.billingPeriod(sub.BillingCycle)
		return map[string]any{
			"status":               models.SubscriptionActive,
			"current_period_start": start,
			"current_period_end":   end,
		}
	})
}

// billingPeriod starts today (UTC) and lasts 30 days, or 365 on a yearly cycle.
func (s *SubscriptionService) billingPeriod(cycle string) (time.Time, time.Time) {
	now := s.now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := 30
	if cycle == models.BillingYearly {
		days = 365
	}
	return start, start.AddDate(0, 0, days)
}

// transition writes the columns built from the scope's subscription after the
// admin check.
func (s *SubscriptionService) transition(ctx context.Context, scope tenancy.Scope, action string, build func(*models.Subscription) map[string]any) (*models.Subscription, error) {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}
	sub, err := s.load(s.db.WithContext(ctx), org.ID)
	if err != nil {
		return nil, err
	}

	columns := build(sub)
	if err := s.db.WithContext(ctx).Model(sub).Updates(columns).Error; err != nil {
		return nil, fmt.Errorf("subscription service: %s: %w", action, err)
	}
	scopedAudit(s.audit, ctx, scope, org.ID, action, sub.ID, map[string]any{"status": columns["status"]})
	return s.load(s.db.WithContext(ctx), org.ID)
}
