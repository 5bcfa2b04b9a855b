package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// EmailTemplateInput creates or patches an email template.
type EmailTemplateInput struct {
	Name      *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Subject   *string   `json:"subject" validate:"omitempty,min=1,max=255"`
	BodyHTML  *string   `json:"body_html"`
	BodyText  *string   `json:"body_text"`
	Variables *[]string `json:"variables"`
	IsActive  *bool     `json:"is_active"`
}

// EmailTemplateService manages reusable templates.
type EmailTemplateService struct {
	store *ScopedStore[models.EmailTemplate, *models.EmailTemplate]
}

const errTemplateNameTaken = "A template with this name already exists."

// NewEmailTemplateService constructs an EmailTemplateService.
func NewEmailTemplateService(db *gorm.DB, audit *AuditService) (*EmailTemplateService, error) {
	store, err := NewScopedStore[models.EmailTemplate](db, audit, "email_template", "Email template", ListSpec{
		SearchFields: []string{"name", "subject"},
		Filters:      map[string]string{"is_active": "is_active", "name": "name"},
		Orderings:    map[string]string{"name": "name", "created_at": "created_at", "updated_at": "updated_at"},
		DefaultOrder: "email_templates.name ASC",
	})
	if err != nil {
		return nil, err
	}
	return &EmailTemplateService{store: store}, nil
}

func (s *EmailTemplateService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.EmailTemplate], error) {
	return s.store.List(ctx, scope, q)
}

func (s *EmailTemplateService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.EmailTemplate, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *EmailTemplateService) Create(ctx context.Context, scope tenancy.Scope, input EmailTemplateInput) (*models.EmailTemplate, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	if input.Subject == nil || strings.TrimSpace(*input.Subject) == "" {
		return nil, apperrors.FieldError("subject", "This field is required.")
	}

	tpl := &models.EmailTemplate{
		Name:     strings.TrimSpace(*input.Name),
		Subject:  strings.TrimSpace(*input.Subject),
		BodyHTML: deref(input.BodyHTML),
		BodyText: deref(input.BodyText),
		IsActive: true,
	}
	if input.Variables != nil {
		tpl.Variables = datatypes.JSONSlice[string](*input.Variables)
	}
	err := s.store.Create(ctx, scope, tpl, nil, func(tx *gorm.DB) error {
		if input.IsActive != nil && !*input.IsActive {
			if err := tx.Model(tpl).Update("is_active", false).Error; err != nil {
				return err
			}
			tpl.IsActive = false
		}
		return uniqueName(tx, &models.EmailTemplate{}, tpl.OrganizationID, "name", tpl.Name, tpl.ID, errTemplateNameTaken)
	})
	if err != nil {
		return nil, err
	}
	return tpl, nil
}

func (s *EmailTemplateService) Update(ctx context.Context, scope tenancy.Scope, id string, input EmailTemplateInput) (*models.EmailTemplate, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "name", input.Name)
	setString(updates, "subject", input.Subject)
	setString(updates, "body_html", input.BodyHTML)
	setString(updates, "body_text", input.BodyText)
	if input.Variables != nil {
		updates["variables"] = datatypes.JSONSlice[string](*input.Variables)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	return s.store.Update(ctx, scope, id, updates, nil, func(tx *gorm.DB, tpl *models.EmailTemplate) error {
		if name, ok := updates["name"].(string); ok {
			return uniqueName(tx, &models.EmailTemplate{}, tpl.OrganizationID, "name", name, tpl.ID, errTemplateNameTaken)
		}
		return nil
	})
}

func (s *EmailTemplateService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// EmailInput logs or patches an email.
type EmailInput struct {
	Subject    *string    `json:"subject" validate:"omitempty,min=1,max=255"`
	Body       *string    `json:"body"`
	FromEmail  *string    `json:"from_email" validate:"omitempty,email"`
	ToEmails   *[]string  `json:"to_emails" validate:"omitempty,dive,email"`
	CcEmails   *[]string  `json:"cc_emails" validate:"omitempty,dive,email"`
	BccEmails  *[]string  `json:"bcc_emails" validate:"omitempty,dive,email"`
	ContactID  *string    `json:"contact" validate:"omitempty,uuid"`
	TemplateID *string    `json:"template" validate:"omitempty,uuid"`
	IsOpened   *bool      `json:"is_opened"`
	OpenedAt   *time.Time `json:"opened_at"`
	ClickCount *int       `json:"click_count" validate:"omitempty,min=0"`
}

func (in EmailInput) refs() []ReferenceCheck {
	return []ReferenceCheck{
		Ref("contact", &models.Contact{}, in.ContactID),
		Ref("template", &models.EmailTemplate{}, in.TemplateID),
	}
}

var emailListSpec = ListSpec{
	SearchFields: []string{"subject", "body"},
	Filters:      map[string]string{"contact": "contact_id", "is_sent": "is_sent", "template": "template_id"},
	DateFilters:  map[string]string{"sent": "sent_at", "created": "created_at"},
	Orderings:    map[string]string{"created_at": "created_at", "updated_at": "updated_at", "sent_at": "sent_at"},
	DefaultOrder: "emails.created_at DESC",
}

// EmailOption customises EmailService and EmailCampaignService.
type EmailOption func(*emailClock)

type emailClock struct {
	now func() time.Time
}

// WithEmailClock injects a custom clock.
func WithEmailClock(clock func() time.Time) EmailOption {
	return func(c *emailClock) {
		if clock != nil {
			c.now = clock
		}
	}
}

func newEmailClock(opts []EmailOption) emailClock {
	clock := emailClock{now: time.Now}
	for _, opt := range opts {
		opt(&clock)
	}
	return clock
}

// EmailService records emails exchanged with contacts. Sending only flags the
// record; delivery happens outside the system.
type EmailService struct {
	store *ScopedStore[models.Email, *models.Email]
	emailClock
}

// NewEmailService constructs an EmailService.
func NewEmailService(db *gorm.DB, audit *AuditService, opts ...EmailOption) (*EmailService, error) {
	store, err := NewScopedStore[models.Email](db, audit, "email", "Email", emailListSpec)
	if err != nil {
		return nil, err
	}
	return &EmailService{store: store, emailClock: newEmailClock(opts)}, nil
}

func (s *EmailService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Email], error) {
	return s.store.List(ctx, scope, q)
}

func (s *EmailService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Email, error) {
	return s.store.Get(ctx, scope, id)
}

// Create logs an unsent email.
func (s *EmailService) Create(ctx context.Context, scope tenancy.Scope, input EmailInput) (*models.Email, error) {
	email, err := s.build(input)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, scope, email, input.refs(), nil); err != nil {
		return nil, err
	}
	return email, nil
}

// Compose logs an email as already sent from the caller's address.
func (s *EmailService) Compose(ctx context.Context, scope tenancy.Scope, input EmailInput) (*models.Email, error) {
	ctx = ensureContext(ctx)
	email, err := s.build(input)
	if err != nil {
		return nil, err
	}
	if len(email.ToEmails) == 0 {
		return nil, apperrors.FieldError("to_emails", "This field is required.")
	}
	if email.FromEmail == "" {
		var sender models.User
		if err := s.store.DB().WithContext(ctx).Select("email").Where("id = ?", scope.UserID).Take(&sender).Error; err == nil {
			email.FromEmail = sender.Email
		}
	}
	now := s.now().UTC()
	email.IsSent = true
	email.SentAt = &now
	if err := s.store.Create(ctx, scope, email, input.refs(), nil); err != nil {
		return nil, err
	}
	return email, nil
}

func (s *EmailService) build(input EmailInput) (*models.Email, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Subject == nil || strings.TrimSpace(*input.Subject) == "" {
		return nil, apperrors.FieldError("subject", "This field is required.")
	}
	email := &models.Email{
		Subject:    strings.TrimSpace(*input.Subject),
		Body:       deref(input.Body),
		ContactID:  optionalID(input.ContactID),
		TemplateID: optionalID(input.TemplateID),
	}
	if input.FromEmail != nil {
		email.FromEmail = normaliseEmail(*input.FromEmail)
	}
	email.ToEmails = addressList(input.ToEmails)
	email.CcEmails = addressList(input.CcEmails)
	email.BccEmails = addressList(input.BccEmails)
	return email, nil
}

func (s *EmailService) Update(ctx context.Context, scope tenancy.Scope, id string, input EmailInput) (*models.Email, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "subject", input.Subject)
	setString(updates, "body", input.Body)
	if input.FromEmail != nil {
		updates["from_email"] = normaliseEmail(*input.FromEmail)
	}
	if input.ToEmails != nil {
		updates["to_emails"] = addressList(input.ToEmails)
	}
	if input.CcEmails != nil {
		updates["cc_emails"] = addressList(input.CcEmails)
	}
	if input.BccEmails != nil {
		updates["bcc_emails"] = addressList(input.BccEmails)
	}
	if input.IsOpened != nil {
		updates["is_opened"] = *input.IsOpened
		if *input.IsOpened {
			opened := s.now().UTC()
			if input.OpenedAt != nil {
				opened = input.OpenedAt.UTC()
			}
			updates["opened_at"] = opened
		}
	}
	if input.ClickCount != nil {
		updates["click_count"] = *input.ClickCount
	}
	setRef(updates, "contact_id", input.ContactID)
	setRef(updates, "template_id", input.TemplateID)
	return s.store.Update(ctx, scope, id, updates, input.refs(), nil)
}

func (s *EmailService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// Send flags a logged email as sent. Sending twice is a validation error.
func (s *EmailService) Send(ctx context.Context, scope tenancy.Scope, id string, sentAt *time.Time) (*models.Email, error) {
	at := s.now().UTC()
	if sentAt != nil && !sentAt.IsZero() {
		at = sentAt.UTC()
	}
	return s.store.Update(ctx, scope, id, nil, nil, func(tx *gorm.DB, email *models.Email) error {
		return markSent(tx, &models.Email{}, email.ID, "Email already sent.", map[string]any{
			"is_sent": true,
			"sent_at": at,
		})
	})
}

// EmailCampaignInput creates or patches a campaign.
type EmailCampaignInput struct {
	Name       *string   `json:"name" validate:"omitempty,min=1,max=255"`
	Subject    *string   `json:"subject" validate:"omitempty,min=1,max=255"`
	Body       *string   `json:"body"`
	Recipients *[]string `json:"recipients" validate:"omitempty,dive,email"`
	TemplateID *string   `json:"template" validate:"omitempty,uuid"`
}

// CampaignStats summarises campaign engagement.
type CampaignStats struct {
	Recipients int        `json:"recipients"`
	Sent       int        `json:"sent"`
	Opened     int        `json:"opened"`
	Clicked    int        `json:"clicked"`
	OpenRate   float64    `json:"open_rate"`
	ClickRate  float64    `json:"click_rate"`
	IsSent     bool       `json:"is_sent"`
	SentAt     *time.Time `json:"sent_at"`
}

// EmailCampaignService manages campaigns. Sending records the send; no mail is delivered.
type EmailCampaignService struct {
	store *ScopedStore[models.EmailCampaign, *models.EmailCampaign]
	emailClock
}

// NewEmailCampaignService constructs an EmailCampaignService.
func NewEmailCampaignService(db *gorm.DB, audit *AuditService, opts ...EmailOption) (*EmailCampaignService, error) {
	store, err := NewScopedStore[models.EmailCampaign](db, audit, "email_campaign", "Email campaign", ListSpec{
		SearchFields: []string{"name", "subject"},
		Filters:      map[string]string{"is_sent": "is_sent"},
		Orderings:    map[string]string{"created_at": "created_at", "updated_at": "updated_at"},
		DefaultOrder: "email_campaigns.created_at DESC",
	})
	if err != nil {
		return nil, err
	}
	return &EmailCampaignService{store: store, emailClock: newEmailClock(opts)}, nil
}

func (s *EmailCampaignService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.EmailCampaign], error) {
	return s.store.List(ctx, scope, q)
}

func (s *EmailCampaignService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.EmailCampaign, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *EmailCampaignService) Create(ctx context.Context, scope tenancy.Scope, input EmailCampaignInput) (*models.EmailCampaign, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	if input.Subject == nil || strings.TrimSpace(*input.Subject) == "" {
		return nil, apperrors.FieldError("subject", "This field is required.")
	}
	campaign := &models.EmailCampaign{
		Name:       strings.TrimSpace(*input.Name),
		Subject:    strings.TrimSpace(*input.Subject),
		Body:       deref(input.Body),
		Recipients: addressList(input.Recipients),
		TemplateID: optionalID(input.TemplateID),
	}
	refs := []ReferenceCheck{Ref("template", &models.EmailTemplate{}, input.TemplateID)}
	if err := s.store.Create(ctx, scope, campaign, refs, nil); err != nil {
		return nil, err
	}
	return campaign, nil
}

func (s *EmailCampaignService) Update(ctx context.Context, scope tenancy.Scope, id string, input EmailCampaignInput) (*models.EmailCampaign, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "name", input.Name)
	setString(updates, "subject", input.Subject)
	setString(updates, "body", input.Body)
	if input.Recipients != nil {
		updates["recipients"] = addressList(input.Recipients)
	}
	setRef(updates, "template_id", input.TemplateID)
	refs := []ReferenceCheck{Ref("template", &models.EmailTemplate{}, input.TemplateID)}
	return s.store.Update(ctx, scope, id, updates, refs, nil)
}

func (s *EmailCampaignService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// Send records the campaign as sent to all recipients.
func (s *EmailCampaignService) Send(ctx context.Context, scope tenancy.Scope, id string) (*models.EmailCampaign, error) {
	now := s.now().UTC()
	return s.store.Update(ctx, scope, id, nil, nil, func(tx *gorm.DB, campaign *models.EmailCampaign) error {
		if len(campaign.Recipients) == 0 {
			return apperrors.FieldError("recipients", "A campaign needs at least one recipient.")
		}
		return markSent(tx, &models.EmailCampaign{}, campaign.ID, "Campaign already sent.", map[string]any{
			"is_sent":    true,
			"sent_at":    now,
			"sent_count": len(campaign.Recipients),
		})
	})
}

// Stats reports the engagement counters of a campaign.
func (s *EmailCampaignService) Stats(ctx context.Context, scope tenancy.Scope, id string) (*CampaignStats, error) {
	campaign, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	stats := &CampaignStats{
		Recipients: len(campaign.Recipients),
		Sent:       campaign.SentCount,
		Opened:     campaign.OpenedCount,
		Clicked:    campaign.ClickedCount,
		IsSent:     campaign.IsSent,
		SentAt:     campaign.SentAt,
	}
	if stats.Sent > 0 {
		stats.OpenRate = round2(float64(stats.Opened) / float64(stats.Sent) * 100)
		stats.ClickRate = round2(float64(stats.Clicked) / float64(stats.Sent) * 100)
	}
	return stats, nil
}

// markSent flips is_sent once; a second send loses the guarded update.
func markSent(tx *gorm.DB, model any, id, message string, updates map[string]any) error {
	result := tx.Model(model).Where("id = ? AND is_sent = ?", id, false).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.NewValidation(message, nil)
	}
	return nil
}

func addressList(values *[]string) datatypes.JSONSlice[string] {
	if values == nil {
		return datatypes.JSONSlice[string]{}
	}
	out := make(datatypes.JSONSlice[string], 0, len(*values))
	for _, value := range *values {
		if value = normaliseEmail(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
