package models

import "time"

// Subscription plans.
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// Subscription statuses.
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
)

// Billing cycles.
const (
	BillingMonthly = "monthly"
	BillingYearly  = "yearly"
)

// DefaultUserLimit caps memberships on new subscriptions.
const DefaultUserLimit = 5

// Subscription tracks the plan of one organization.
type Subscription struct {
	BaseModel

	OrganizationID     string     `gorm:"type:uuid;not null;uniqueIndex" json:"organization"`
	Plan               string     `gorm:"type:varchar(32);not null;default:'starter'" json:"plan"`
	BillingCycle       string     `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_cycle"`
	Status             string     `gorm:"type:varchar(16);not null;default:'trialing'" json:"status"`
	TrialEndsAt        *time.Time `json:"trial_ends_at"`
	CurrentPeriodStart *time.Time `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	UserLimit          int        `gorm:"not null;default:5" json:"user_limit"`
}
