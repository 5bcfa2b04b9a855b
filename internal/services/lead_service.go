package services

import (
	"context"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

var leadStatuses = []string{models.LeadNew, models.LeadContacted, models.LeadQualified, models.LeadUnqualified, models.LeadConverted}

// LeadInput creates or patches a lead. Nil fields are left unchanged on update.
type LeadInput struct {
	Name           *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Email          *string        `json:"email" validate:"omitempty,email"`
	Phone          *string        `json:"phone" validate:"omitempty,max=20"`
	CompanyName    *string        `json:"company_name" validate:"omitempty,max=255"`
	JobTitle       *string        `json:"job_title" validate:"omitempty,max=100"`
	Website        *string        `json:"website" validate:"omitempty,url"`
	Status         *string        `json:"status" validate:"omitempty,oneof=new contacted qualified unqualified converted"`
	Source         *string        `json:"source" validate:"omitempty,oneof=website referral cold_call import api social_media event other"`
	Score          *int           `json:"score" validate:"omitempty,min=0,max=100"`
	Priority       *string        `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	EstimatedValue *float64       `json:"estimated_value" validate:"omitempty,min=0"`
	Currency       *string        `json:"currency" validate:"omitempty,len=3"`
	Notes          *string        `json:"notes"`
	AssignedToID   *string        `json:"assigned_to" validate:"omitempty,uuid"`
	TagIDs         *[]string      `json:"tags" validate:"omitempty,dive,uuid"`
	CustomFields   map[string]any `json:"custom_fields"`
}

func (in LeadInput) updates() map[string]any {
	updates := map[string]any{}
	setString(updates, "name", in.Name)
	if in.Email != nil {
		updates["email"] = normaliseEmail(*in.Email)
	}
	setString(updates, "phone", in.Phone)
	setString(updates, "company_name", in.CompanyName)
	setString(updates, "job_title", in.JobTitle)
	setString(updates, "website", in.Website)
	setString(updates, "status", in.Status)
	setString(updates, "source", in.Source)
	setString(updates, "priority", in.Priority)
	setString(updates, "notes", in.Notes)
	if in.Currency != nil {
		updates["currency"] = strings.ToUpper(strings.TrimSpace(*in.Currency))
	}
	if in.Score != nil {
		updates["score"] = *in.Score
	}
	if in.EstimatedValue != nil {
		updates["estimated_value"] = *in.EstimatedValue
	}
	setRef(updates, "assigned_to_id", in.AssignedToID)
	if in.CustomFields != nil {
		updates["custom_fields"] = datatypes.JSONMap(in.CustomFields)
	}
	return updates
}

// ConvertLeadInput controls lead conversion. CreateContact defaults to true;
// Contact overrides values copied from the lead.
type ConvertLeadInput struct {
	CreateContact *bool              `json:"create_contact"`
	Contact       ConvertContactData `json:"contact_data"`
}

// ConvertContactData overrides the contact built from a lead.
type ConvertContactData struct {
	FirstName string `json:"first_name" validate:"omitempty,max=100"`
	LastName  string `json:"last_name" validate:"omitempty,max=100"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
	JobTitle  string `json:"job_title" validate:"omitempty,max=100"`
	CompanyID string `json:"company" validate:"omitempty,uuid"`
}

// ConvertedLead is the outcome of a conversion.
type ConvertedLead struct {
	Lead    *models.Lead    `json:"lead"`
	Contact *models.Contact `json:"contact"`
}

// LeadStats summarises the leads of one organization.
type LeadStats struct {
	Total               int64            `json:"total"`
	ByStatus            map[string]int64 `json:"by_status"`
	BySource            map[string]int64 `json:"by_source"`
	ByPriority          map[string]int64 `json:"by_priority"`
	ConversionRate      float64          `json:"conversion_rate"`
	AverageScore        float64          `json:"average_score"`
	TotalEstimatedValue float64          `json:"total_estimated_value"`
	RecentCount         int64            `json:"recent_count"`
}

var leadListSpec = ListSpec{
	SearchFields: []string{"name", "email", "company_name"},
	Filters: map[string]string{
		"status":      "status",
		"source":      "source",
		"priority":    "priority",
		"assigned_to": "assigned_to_id",
	},
	DateFilters:  map[string]string{"created": "created_at"},
	Orderings:    map[string]string{"name": "name", "score": "score", "priority": "priority", "created_at": "created_at"},
	DefaultOrder: "leads.created_at DESC",
	Preloads:     []string{"Tags"},
	Custom: func(query *gorm.DB, filters map[string]string) *gorm.DB {
		query = tagFilter("lead_tags", "lead_id", "leads")(query, filters)
		if low, err := strconv.Atoi(strings.TrimSpace(filters["score_min"])); err == nil {
			query = query.Where("leads.score >= ?", low)
		}
		if high, err := strconv.Atoi(strings.TrimSpace(filters["score_max"])); err == nil {
			query = query.Where("leads.score <= ?", high)
		}
		return query
	},
}

// LeadOption customises LeadService.
type LeadOption func(*LeadService)

// WithLeadClock injects a custom clock.
func WithLeadClock(clock func() time.Time) LeadOption {
	return func(s *LeadService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// LeadService manages leads and their conversion into contacts.
type LeadService struct {
	store *ScopedStore[models.Lead, *models.Lead]
	now   func() time.Time
}

// NewLeadService constructs a LeadService.
func NewLeadService(db *gorm.DB, audit *AuditService, opts ...LeadOption) (*LeadService, error) {
	store, err := NewScopedStore[models.Lead](db, audit, "lead", "Lead", leadListSpec)
	if err != nil {
		return nil, err
	}
	svc := &LeadService{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *LeadService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Lead], error) {
	return s.store.List(ctx, scope, q)
}

func (s *LeadService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Lead, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *LeadService) Create(ctx context.Context, scope tenancy.Scope, input LeadInput) (*models.Lead, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}

	lead := &models.Lead{
		Name:           strings.TrimSpace(*input.Name),
		Phone:          deref(input.Phone),
		CompanyName:    deref(input.CompanyName),
		JobTitle:       deref(input.JobTitle),
		Website:        deref(input.Website),
		Status:         models.LeadNew,
		Source:         deref(input.Source),
		Priority:       "medium",
		EstimatedValue: input.EstimatedValue,
		Currency:       "USD",
		Notes:          deref(input.Notes),
		AssignedToID:   optionalID(input.AssignedToID),
	}
	if input.Email != nil {
		lead.Email = normaliseEmail(*input.Email)
	}
	if input.Status != nil {
		lead.Status = *input.Status
	}
	if input.Priority != nil {
		lead.Priority = *input.Priority
	}
	if input.Currency != nil {
		lead.Currency = strings.ToUpper(strings.TrimSpace(*input.Currency))
	}
	if input.Score != nil {
		lead.Score = *input.Score
	}
	if input.CustomFields != nil {
		lead.CustomFields = datatypes.JSONMap(input.CustomFields)
	}
	if lead.Status == models.LeadConverted {
		now := s.now().UTC()
		lead.ConvertedAt = &now
	}

	refs := []ReferenceCheck{MemberRef("assigned_to", input.AssignedToID)}
	err := s.store.Create(ctx, scope, lead, refs, func(tx *gorm.DB) error {
		if input.TagIDs == nil {
			return nil
		}
		return replaceTags(tx, lead, lead.OrganizationID, *input.TagIDs)
	})
	if err != nil {
		return nil, err
	}
	return s.store.Get(ctx, scope, lead.ID)
}

func (s *LeadService) Update(ctx context.Context, scope tenancy.Scope, id string, input LeadInput) (*models.Lead, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := input.updates()
	refs := []ReferenceCheck{MemberRef("assigned_to", input.AssignedToID)}
	return s.store.Update(ctx, scope, id, updates, refs, func(tx *gorm.DB, lead *models.Lead) error {
		if err := s.stampConversion(tx, lead, updates); err != nil {
			return err
		}
		if input.TagIDs == nil {
			return nil
		}
		return replaceTags(tx, lead, lead.OrganizationID, *input.TagIDs)
	})
}

func (s *LeadService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// UpdateStatus sets the lead status. Moving to converted stamps converted_at once.
func (s *LeadService) UpdateStatus(ctx context.Context, scope tenancy.Scope, id, status string) (*models.Lead, error) {
	status = strings.TrimSpace(status)
	if !slices.Contains(leadStatuses, status) {
		return nil, apperrors.FieldError("status", "Invalid status.")
	}
	updates := map[string]any{"status": status}
	return s.store.Update(ctx, scope, id, updates, nil, func(tx *gorm.DB, lead *models.Lead) error {
		return s.stampConversion(tx, lead, updates)
	})
}

// UpdateScore sets the lead score, which must lie within 0 and 100.
func (s *LeadService) UpdateScore(ctx context.Context, scope tenancy.Scope, id string, score int) (*models.Lead, error) {
	if score < 0 || score > 100 {
		return nil, apperrors.FieldError("score", "Score must be between 0 and 100.")
	}
	return s.store.Update(ctx, scope, id, map[string]any{"score": score}, nil, nil)
}

// Convert marks the lead converted and, unless disabled, creates a contact in the
// lead's organization carrying its details and tags.
func (s *LeadService) Convert(ctx context.Context, scope tenancy.Scope, id string, input ConvertLeadInput) (*ConvertedLead, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input.Contact); err != nil {
		return nil, err
	}

	lead, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if lead.Status == models.LeadConverted || lead.ConvertedAt != nil {
		return nil, apperrors.NewValidation("This lead has already been converted.", nil)
	}

	var contact *models.Contact
	now := s.now().UTC()
	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if input.CreateContact == nil || *input.CreateContact {
			contact = contactFromLead(lead, input.Contact)
			contact.AssignTenant(lead.OrganizationID, scope.Actor())
			if err := checkReferences(tx, lead.OrganizationID, Ref("company", &models.Company{}, contact.CompanyID)); err != nil {
				return err
			}
			if err := tx.Omit("Tags").Create(contact).Error; err != nil {
				return err
			}
			if len(lead.Tags) > 0 {
				if err := tx.Model(contact).Association("Tags").Replace(lead.Tags); err != nil {
					return err
				}
			}
		}

		updates := map[string]any{"status": models.LeadConverted, "converted_at": now}
		if contact != nil {
			updates["converted_contact_id"] = contact.ID
		}
		result := tx.Model(&models.Lead{}).
			Where("id = ? AND converted_at IS NULL", lead.ID).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return apperrors.NewValidation("This lead has already been converted.", nil)
		}
		return nil
	})
	if err != nil {
		return nil, s.store.translate(err, "convert")
	}

	meta := map[string]any{}
	if contact != nil {
		meta["contact"] = contact.ID
	}
	scopedAudit(s.store.audit, ctx, scope, lead.OrganizationID, "lead.convert", lead.ID, meta)

	out := &ConvertedLead{Contact: contact}
	if out.Lead, err = s.store.Get(ctx, scope, lead.ID); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats summarises leads of the resolved organization.
func (s *LeadService) Stats(ctx context.Context, scope tenancy.Scope) (*LeadStats, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	base := func() *gorm.DB {
		return s.store.DB().WithContext(ctx).Model(&models.Lead{}).Where("organization_id = ?", org.ID)
	}

	stats := &LeadStats{
		ByStatus:   make(map[string]int64, len(leadStatuses)),
		BySource:   map[string]int64{},
		ByPriority: map[string]int64{},
	}
	for _, status := range leadStatuses {
		stats.ByStatus[status] = 0
	}
	for column, target := range map[string]map[string]int64{"status": stats.ByStatus, "source": stats.BySource, "priority": stats.ByPriority} {
		var rows []struct {
			Value string
			Count int64
		}
		if err := base().Select(column + " AS value, COUNT(*) AS count").Group(column).Scan(&rows).Error; err != nil {
			return nil, s.store.translate(err, "stats")
		}
		for _, row := range rows {
			if row.Value == "" {
				continue
			}
			target[row.Value] = row.Count
		}
	}

	var totals struct {
		Total    int64
		AvgScore *float64
		Value    *float64
	}
	if err := base().
		Select("COUNT(*) AS total, AVG(score) AS avg_score, SUM(estimated_value) AS value").
		Scan(&totals).Error; err != nil {
		return nil, s.store.translate(err, "stats")
	}
	stats.Total = totals.Total
	if totals.AvgScore != nil {
		stats.AverageScore = round2(*totals.AvgScore)
	}
	if totals.Value != nil {
		stats.TotalEstimatedValue = *totals.Value
	}
	if stats.Total > 0 {
		stats.ConversionRate = round2(float64(stats.ByStatus[models.LeadConverted]) / float64(stats.Total) * 100)
	}

	since := s.now().UTC().AddDate(0, 0, -30)
	if err := base().Where("created_at >= ?", since).Count(&stats.RecentCount).Error; err != nil {
		return nil, s.store.translate(err, "stats")
	}
	return stats, nil
}

// Activities lists activities logged against a lead.
func (s *LeadService) Activities(ctx context.Context, scope tenancy.Scope, id string, q ListQuery) (Page[models.Activity], error) {
	lead, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return Page[models.Activity]{}, err
	}
	query := s.store.DB().WithContext(ensureContext(ctx)).Model(&models.Activity{}).
		Where("activities.organization_id = ? AND activities.lead_id = ?", lead.OrganizationID, lead.ID)
	return paginate[models.Activity](query, activityListSpec, "activities", q)
}

func (s *LeadService) stampConversion(tx *gorm.DB, lead *models.Lead, updates map[string]any) error {
	if updates["status"] != models.LeadConverted || lead.ConvertedAt != nil {
		return nil
	}
	return tx.Model(lead).Update("converted_at", s.now().UTC()).Error
}

func contactFromLead(lead *models.Lead, data ConvertContactData) *models.Contact {
	first, last := splitName(lead.Name)
	contact := &models.Contact{
		FirstName: firstNonEmpty(data.FirstName, first),
		LastName:  firstNonEmpty(data.LastName, last),
		Email:     normaliseEmail(firstNonEmpty(data.Email, lead.Email)),
		Phone:     firstNonEmpty(data.Phone, lead.Phone),
		JobTitle:  firstNonEmpty(data.JobTitle, lead.JobTitle),
		Stage:     models.ContactStageProspect,
		Source:    lead.Source,
		OwnerID:   lead.AssignedToID,
		CompanyID: optionalID(&data.CompanyID),
	}
	return contact
}

func splitName(name string) (string, string) {
	fields := strings.Fields(name)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
