package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// ActivityInput creates or patches an activity.
type ActivityInput struct {
	Type            *string    `json:"type" validate:"omitempty,oneof=call email meeting note"`
	Subject         *string    `json:"subject" validate:"omitempty,min=1,max=255"`
	Description     *string    `json:"description"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,min=0"`
	OccurredAt      *time.Time `json:"occurred_at"`
	ContactID       *string    `json:"contact" validate:"omitempty,uuid"`
	CompanyID       *string    `json:"company" validate:"omitempty,uuid"`
	OpportunityID   *string    `json:"opportunity" validate:"omitempty,uuid"`
	LeadID          *string    `json:"lead" validate:"omitempty,uuid"`
}

func (in ActivityInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		Ref("contact", &models.Contact{}, in.ContactID),
		Ref("company", &models.Company{}, in.CompanyID),
		Ref("opportunity", &models.Opportunity{}, in.OpportunityID),
		Ref("lead", &models.Lead{}, in.LeadID),
	}
}

func (in ActivityInput) hasRelation() bool {
	for _, id := range []*string{in.ContactID, in.CompanyID, in.OpportunityID, in.LeadID} {
		if optionalID(id) != nil {
			return true
		}
	}
	return false
}

var activityListSpec = ListSpec{
	SearchFields: []string{"subject", "description"},
	Filters: map[string]string{
		"type":        "type",
		"contact":     "contact_id",
		"company":     "company_id",
		"opportunity": "opportunity_id",
		"lead":        "lead_id",
	},
	DateFilters:  map[string]string{"occurred": "occurred_at"},
	Orderings:    map[string]string{"occurred_at": "occurred_at", "created_at": "created_at"},
	DefaultOrder: "activities.occurred_at DESC",
}

// ActivityOption customises ActivityService.
type ActivityOption func(*ActivityService)

// WithActivityClock injects a custom clock.
func WithActivityClock(clock func() time.Time) ActivityOption {
	return func(s *ActivityService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ActivityService manages logged interactions.
type ActivityService struct {
	store *ScopedStore[models.Activity, *models.Activity]
	now   func() time.Time
}

// NewActivityService constructs an ActivityService.
func NewActivityService(db *gorm.DB, audit *AuditService, opts ...ActivityOption) (*ActivityService, error) {
	store, err := NewScopedStore[models.Activity](db, audit, "activity", "Activity", activityListSpec)
	if err != nil {
		return nil, err
	}
	svc := &ActivityService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *ActivityService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Activity], error) {
	return s.store.List(ctx, scope, q)
}

func (s *ActivityService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Activity, error) {
	return s.store.Get(ctx, scope, id)
}

// Create logs an activity. At least one of contact, company, opportunity or
// lead is required; occurred_at defaults to now.
func (s *ActivityService) Create(ctx context.Context, scope tenancy.Scope, input ActivityInput) (*models.Activity, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Type == nil {
		return nil, apperrors.FieldError("type", "This field is required.")
	}
	if input.Subject == nil || strings.TrimSpace(*input.Subject) == "" {
		return nil, apperrors.FieldError("subject", "This field is required.")
	}
	if !input.hasRelation() {
		return nil, apperrors.NewValidation("At least one related entity (contact, company, opportunity or lead) is required.", nil)
	}

	activity := &models.Activity{
		Type:            *input.Type,
		Subject:         strings.TrimSpace(*input.Subject),
		Description:     deref(input.Description),
		DurationMinutes: input.DurationMinutes,
		OccurredAt:      s.now().UTC(),
		ContactID:       optionalID(input.ContactID),
		CompanyID:       optionalID(input.CompanyID),
		OpportunityID:   optionalID(input.OpportunityID),
		LeadID:          optionalID(input.LeadID),
	}
	if input.OccurredAt != nil && !input.OccurredAt.IsZero() {
		activity.OccurredAt = input.OccurredAt.UTC()
	}
	if err := s.store.Create(ctx, scope, activity, input.refs(), nil); err != nil {
		return nil, err
	}
	return activity, nil
}

func (s *ActivityService) Update(ctx context.Context, scope tenancy.Scope, id string, input ActivityInput) (*models.Activity, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "type", input.Type)
	setString(updates, "subject", input.Subject)
	setString(updates, "description", input.Description)
	if input.DurationMinutes != nil {
		updates["duration_minutes"] = *input.DurationMinutes
	}
	if input.OccurredAt != nil {
		updates["occurred_at"] = input.OccurredAt.UTC()
	}
	setRef(updates, "contact_id", input.ContactID)
	setRef(updates, "company_id", input.CompanyID)
	setRef(updates, "opportunity_id", input.OpportunityID)
	setRef(updates, "lead_id", input.LeadID)
	return s.store.Update(ctx, scope, id, updates, input.refs(), nil)
}

func (s *ActivityService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}
