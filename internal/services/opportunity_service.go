package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// OpportunityInput creates or patches an opportunity.
type OpportunityInput struct {
	Name            *string    `json:"name" validate:"omitempty,min=1,max=255"`
	Amount          *float64   `json:"amount" validate:"omitempty,min=0"`
	Currency        *string    `json:"currency" validate:"omitempty,len=3"`
	Probability     *float64   `json:"probability" validate:"omitempty,min=0,max=100"`
	ExpectedCloseAt *time.Time `json:"expected_close_date"`
	ActualCloseAt   *time.Time `json:"actual_close_date"`
	Status          *string    `json:"status" validate:"omitempty,oneof=open won lost"`
	Source          *string    `json:"source" validate:"omitempty,max=50"`
	Description     *string    `json:"description"`
	CompanyID       *string    `json:"company" validate:"omitempty,uuid"`
	ContactID       *string    `json:"contact" validate:"omitempty,uuid"`
	StageID         *string    `json:"stage" validate:"omitempty,uuid"`
	OwnerID         *string    `json:"owner" validate:"omitempty,uuid"`
}

func (in OpportunityInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		Ref("company", &models.Company{}, in.CompanyID),
		Ref("contact", &models.Contact{}, in.ContactID),
		Ref("stage", &models.OpportunityStage{}, in.StageID),
		MemberRef("owner", in.OwnerID),
	}
}

func (in OpportunityInput) updates() map[string]any {
	updates := map[string]any{}
	setString(updates, "name", in.Name)
	setString(updates, "status", in.Status)
	setString(updates, "source", in.Source)
	setString(updates, "description", in.Description)
	if in.Currency != nil {
		updates["currency"] = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.Amount != nil {
		updates["amount"] = *in.Amount
	}
	if in.Probability != nil {
		updates["probability"] = *in.Probability
	}
	if in.ExpectedCloseAt != nil {
		updates["expected_close_at"] = in.ExpectedCloseAt.UTC()
	}
	if in.ActualCloseAt != nil {
		updates["actual_close_at"] = in.ActualCloseAt.UTC()
	}
	setRef(updates, "company_id", in.CompanyID)
	setRef(updates, "contact_id", in.ContactID)
	setRef(updates, "stage_id", in.StageID)
	setRef(updates, "owner_id", in.OwnerID)
	return updates
}

// LineItemInput creates or patches an opportunity line item.
type LineItemInput struct {
	ProductName     *string  `json:"product_name" validate:"omitempty,min=1,max=255"`
	Description     *string  `json:"description"`
	Quantity        *float64 `json:"quantity" validate:"omitempty,gt=0"`
	UnitPrice       *float64 `json:"unit_price" validate:"omitempty,min=0"`
	DiscountPercent *float64 `json:"discount_percent" validate:"omitempty,min=0,max=100"`
}

func (in LineItemInput) apply(item *models.OpportunityLineItem) {
	if in.ProductName != nil {
		item.ProductName = strings.TrimSpace(*in.ProductName)
	}
	if in.Description != nil {
		item.Description = strings.TrimSpace(*in.Description)
	}
	if in.Quantity != nil {
		item.Quantity = *in.Quantity
	}
	if in.UnitPrice != nil {
		item.UnitPrice = *in.UnitPrice
	}
	if in.DiscountPercent != nil {
		item.DiscountPercent = *in.DiscountPercent
	}
	item.ComputeTotal()
}

// PipelineStage is the count and amount of opportunities in one stage.
type PipelineStage struct {
	StageID          *string `json:"stage_id"`
	Stage            string  `json:"stage"`
	OpportunityCount int64   `json:"opportunity_count"`
	TotalAmount      float64 `json:"total_amount"`
}

// ForecastPeriod is the expected amount of open opportunities closing in a period.
type ForecastPeriod struct {
	Period      string  `json:"period"`
	TotalAmount float64 `json:"total_amount"`
}

var opportunityListSpec = ListSpec{
	SearchFields: []string{"name", "description"},
	Filters: map[string]string{
		"stage":   "stage_id",
		"status":  "status",
		"owner":   "owner_id",
		"company": "company_id",
		"contact": "contact_id",
	},
	DateFilters: map[string]string{"expected_close": "expected_close_at", "created": "created_at"},
	Orderings: map[string]string{
		"expected_close_date": "expected_close_at",
		"amount":              "amount",
		"created_at":          "created_at",
		"updated_at":          "updated_at",
	},
	DefaultOrder: "opportunities.created_at DESC",
	Preloads:     []string{"LineItems"},
}

// OpportunityOption customises OpportunityService.
type OpportunityOption func(*OpportunityService)

// WithOpportunityClock injects a custom clock.
func WithOpportunityClock(clock func() time.Time) OpportunityOption {
	return func(s *OpportunityService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithOpportunityNotifications notifies owners of won deals.
func WithOpportunityNotifications(notifications *NotificationService) OpportunityOption {
	return func(s *OpportunityService) {
		s.notifications = notifications
	}
}

// OpportunityService manages opportunities and their line items.
type OpportunityService struct {
	store         *ScopedStore[models.Opportunity, *models.Opportunity]
	notifications *NotificationService
	now           func() time.Time
}

// NewOpportunityService constructs an OpportunityService.
func NewOpportunityService(db *gorm.DB, audit *AuditService, opts ...OpportunityOption) (*OpportunityService, error) {
	store, err := NewScopedStore[models.Opportunity](db, audit, "opportunity", "Opportunity", opportunityListSpec)
	if err != nil {
		return nil, err
	}
	svc := &OpportunityService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *OpportunityService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Opportunity], error) {
	return s.store.List(ctx, scope, q)
}

func (s *OpportunityService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Opportunity, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *OpportunityService) Create(ctx context.Context, scope tenancy.Scope, input OpportunityInput) (*models.Opportunity, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}

	opp := &models.Opportunity{
		Name:        strings.TrimSpace(*input.Name),
		Currency:    "USD",
		Status:      models.OpportunityOpen,
		Source:      deref(input.Source),
		Description: deref(input.Description),
		CompanyID:   optionalID(input.CompanyID),
		ContactID:   optionalID(input.ContactID),
		StageID:     optionalID(input.StageID),
		OwnerID:     optionalID(input.OwnerID),
	}
	if input.Amount != nil {
		opp.Amount = *input.Amount
	}
	if input.Currency != nil {
		opp.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}
	if input.Probability != nil {
		opp.Probability = *input.Probability
	}
	if input.Status != nil {
		opp.Status = *input.Status
	}
	if input.ExpectedCloseAt != nil {
		t := input.ExpectedCloseAt.UTC()
		opp.ExpectedCloseAt = &t
	}
	if input.ActualCloseAt != nil {
		t := input.ActualCloseAt.UTC()
		opp.ActualCloseAt = &t
	}

	if err := s.store.Create(ctx, scope, opp, input.refs(), nil); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope, opp.ID)
}

func (s *OpportunityService) Update(ctx context.Context, scope tenancy.Scope, id string, input OpportunityInput) (*models.Opportunity, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	return s.store.Update(ctx, scope, id, input.updates(), input.refs(), nil)
}

func (s *OpportunityService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// MarkWon closes the opportunity as won and notifies its owner. closedAt
// defaults to now.
func (s *OpportunityService) MarkWon(ctx context.Context, scope tenancy.Scope, id string, closedAt *time.Time) (*models.Opportunity, error) {
	opp, err := s.close(ctx, scope, id, models.OpportunityWon, closedAt)
	if err != nil {
		return nil, err
	}
	if opp.OwnerID != nil {
		s.notifications.Notify(ensureContext(ctx), CreateNotificationInput{
			UserID:         *opp.OwnerID,
			OrganizationID: &opp.OrganizationID,
			Type:           models.NotificationOpportunityWon,
			Title:          "Opportunity won",
			Message:        fmt.Sprintf("%s was marked as won.", opp.Name),
			Link:           "/opportunities/" + opp.ID,
			Metadata:       map[string]any{"opportunity_id": opp.ID, "amount": opp.Amount},
		})
	}
	return opp, nil
}

// MarkLost closes the opportunity as lost.
func (s *OpportunityService) MarkLost(ctx context.Context, scope tenancy.Scope, id string, closedAt *time.Time) (*models.Opportunity, error) {
	return s.close(ctx, scope, id, models.OpportunityLost, closedAt)
}

func (s *OpportunityService) close(ctx context.Context, scope tenancy.Scope, id, status string, closedAt *time.Time) (*models.Opportunity, error) {
	at := s.now().UTC()
	if closedAt != nil && !closedAt.IsZero() {
		at = closedAt.UTC()
	}
	return s.store.Update(ctx, scope, id, map[string]any{
		"status":          status,
		"actual_close_at": at,
	}, nil, nil)
}

// MoveStage moves the opportunity to another stage of its organization.
func (s *OpportunityService) MoveStage(ctx context.Context, scope tenancy.Scope, id, stageID string) (*models.Opportunity, error) {
	stageID = strings.TrimSpace(stageID)
	if stageID == "" {
		return nil, apperrors.FieldError("stage", "This field is required.")
	}
	return s.store.Update(ctx, scope, id, map[string]any{"stage_id": stageID},
		[]ReferenceCheck{Ref("stage", &models.OpportunityStage{}, &stageID)}, nil)
}

// AddLineItem appends a priced line to the opportunity.
func (s *OpportunityService) AddLineItem(ctx context.Context, scope tenancy.Scope, id string, input LineItemInput) (*models.OpportunityLineItem, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.ProductName == nil || strings.TrimSpace(*input.ProductName) == "" {
		return nil, apperrors.FieldError("product_name", "This field is required.")
	}
	opp, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	item := &models.OpportunityLineItem{OpportunityID: opp.ID, Quantity: 1}
	input.apply(item)
	if err := s.store.DB().WithContext(ctx).Create(item).Error; err != nil {
		return nil, s.store.translate(err, "add line item")
	}
	scopedAudit(s.store.audit, ctx, scope, opp.OrganizationID, "opportunity.line_item.create", opp.ID, map[string]any{"line_item": item.ID})
	return item, nil
}

// UpdateLineItem patches a line item and recomputes its total.
func (s *OpportunityService) UpdateLineItem(ctx context.Context, scope tenancy.Scope, id, itemID string, input LineItemInput) (*models.OpportunityLineItem, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	opp, item, err := s.lineItem(ctx, scope, id, itemID)
	if err != nil {
		return nil, err
	}
	input.apply(item)
	if err := s.store.DB().WithContext(ctx).Save(item).Error; err != nil {
		return nil, s.store.translate(err, "update line item")
	}
	scopedAudit(s.store.audit, ctx, scope, opp.OrganizationID, "opportunity.line_item.update", opp.ID, map[string]any{"line_item": item.ID})
	return item, nil
}

// DeleteLineItem removes a line item.
func (s *OpportunityService) DeleteLineItem(ctx context.Context, scope tenancy.Scope, id, itemID string) error {
	ctx = ensureContext(ctx)
	opp, item, err := s.lineItem(ctx, scope, id, itemID)
	if err != nil {
		return err
	}
	if err := s.store.DB().WithContext(ctx).Delete(item).Error; err != nil {
		return s.store.translate(err, "delete line item")
	}
	scopedAudit(s.store.audit, ctx, scope, opp.OrganizationID, "opportunity.line_item.delete", opp.ID, map[string]any{"line_item": item.ID})
	return nil
}

func (s *OpportunityService) lineItem(ctx context.Context, scope tenancy.Scope, id, itemID string) (*models.Opportunity, *models.OpportunityLineItem, error) {
	opp, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	var item models.OpportunityLineItem
	err = s.store.DB().WithContext(ctx).
		Where("id = ? AND opportunity_id = ?", strings.TrimSpace(itemID), opp.ID).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, notFound("Line item")
	}
	if err != nil {
		return nil, nil, s.store.translate(err, "load line item")
	}
	return opp, &item, nil
}

// Pipeline reports the number and total amount of opportunities per stage,
// honouring the usual list filters.
func (s *OpportunityService) Pipeline(ctx context.Context, scope tenancy.Scope, q ListQuery) ([]PipelineStage, error) {
	query, ok := s.store.Scoped(ctx, scope)
	if !ok {
		return []PipelineStage{}, nil
	}
	query = opportunityListSpec.apply(query, "opportunities", q.normalised())

	var rows []PipelineStage
	if err := query.
		Select("opportunities.stage_id AS stage_id, COALESCE(opportunity_stages.name, '') AS stage, " +
			"COUNT(opportunities.id) AS opportunity_count, COALESCE(SUM(opportunities.amount), 0) AS total_amount").
		Joins("LEFT JOIN opportunity_stages ON opportunity_stages.id = opportunities.stage_id").
		Group("opportunities.stage_id, opportunity_stages.name, opportunity_stages.position").
		Order("opportunity_stages.position").
		Scan(&rows).Error; err != nil {
		return nil, s.store.translate(err, "pipeline")
	}
	if rows == nil {
		rows = []PipelineStage{}
	}
	return rows, nil
}

// Forecast sums the amount of open opportunities expected to close this month
// and next month.
func (s *OpportunityService) Forecast(ctx context.Context, scope tenancy.Scope) ([]ForecastPeriod, error) {
	now := s.now().UTC()
	thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonth := thisMonth.AddDate(0, 1, 0)
	periods := []struct {
		label      string
		start, end time.Time
	}{
		{"this_month", thisMonth, nextMonth},
		{"next_month", nextMonth, nextMonth.AddDate(0, 1, 0)},
	}

	out := make([]ForecastPeriod, 0, len(periods))
	for _, period := range periods {
		query, ok := s.store.Scoped(ctx, scope)
		if !ok {
			out = append(out, ForecastPeriod{Period: period.label})
			continue
		}
		var total float64
		if err := query.
			Where("opportunities.status = ?", models.OpportunityOpen).
			Where("opportunities.expected_close_at >= ? AND opportunities.expected_close_at < ?", period.start, period.end).
			Select("COALESCE(SUM(opportunities.amount), 0)").
			Scan(&total).Error; err != nil {
			return nil, s.store.translate(err, "forecast")
		}
		out = append(out, ForecastPeriod{Period: period.label, TotalAmount: total})
	}
	return out, nil
}
