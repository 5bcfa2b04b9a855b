package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/storage"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

const (
	trialPeriod     = 14 * 24 * time.Hour
	maxLogoSize     = 5 << 20
	maxSlugLength   = 50
	defaultTimezone = "UTC"
)

var (
	slugSeparators = regexp.MustCompile(`[^a-z0-9]+`)

	logoExtensions = map[string]string{
		"image/png":  ".png",
		"image/jpeg": ".jpg",
		"image/gif":  ".gif",
		"image/webp": ".webp",
	}

	errOwnerOnly = apperrors.NewPermissionDenied("Only the organization owner can perform this action.")
)

// CreateOrganizationInput captures the attributes required to register an organization.
type CreateOrganizationInput struct {
	Name        string  `json:"name" validate:"required,max=255"`
	Subdomain   *string `json:"subdomain" validate:"omitempty,slug,max=64"`
	Timezone    string  `json:"timezone" validate:"omitempty,timezone"`
	AdminUserID *string `json:"admin_user" validate:"omitempty,uuid"`
}

// UpdateOrganizationInput represents mutable organization fields.
type UpdateOrganizationInput struct {
	Name      *string `json:"name" validate:"omitempty,max=255"`
	Subdomain *string `json:"subdomain" validate:"omitempty,slug,max=64"`
	IsActive  *bool   `json:"is_active"`
}

// OrganizationSettings is the timezone, business hours and branding block.
type OrganizationSettings struct {
	Timezone       string         `json:"timezone"`
	BusinessHours  map[string]any `json:"business_hours"`
	LogoURL        string         `json:"logo_url"`
	FaviconURL     string         `json:"favicon_url"`
	PrimaryColor   string         `json:"primary_color"`
	SecondaryColor string         `json:"secondary_color"`
	CustomDomain   string         `json:"custom_domain"`
}

// UpdateSettingsInput patches OrganizationSettings.
type UpdateSettingsInput struct {
	Timezone       *string        `json:"timezone" validate:"omitempty,timezone"`
	BusinessHours  map[string]any `json:"business_hours"`
	FaviconURL     *string        `json:"favicon_url" validate:"omitempty,url"`
	PrimaryColor   *string        `json:"primary_color" validate:"omitempty,hexcolor"`
	SecondaryColor *string        `json:"secondary_color" validate:"omitempty,hexcolor"`
	CustomDomain   *string        `json:"custom_domain" validate:"omitempty,fqdn"`
}

// LogoUpload describes an uploaded logo file.
type LogoUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// OrganizationOption customises OrganizationService.
type OrganizationOption func(*OrganizationService)

// WithOrganizationStorage sets the backend used for logo uploads.
func WithOrganizationStorage(backend storage.Backend) OrganizationOption {
	return func(s *OrganizationService) {
		s.storage = backend
	}
}

// WithOrganizationClock injects a custom clock.
func WithOrganizationClock(clock func() time.Time) OrganizationOption {
	return func(s *OrganizationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// OrganizationService manages the organization lifecycle.
type OrganizationService struct {
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
	storage  storage.Backend
	now      func() time.Time
}

// NewOrganizationService constructs an OrganizationService instance.
func NewOrganizationService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver, opts ...OrganizationOption) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("organization service: resolver is required")
	}
	svc := &OrganizationService{
		db:       db,
		audit:    audit,
		resolver: resolver,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateWithOwner creates an organization owned by ownerID, seeds its system
// roles and trial subscription and optionally adds an admin membership. All of
// it commits or rolls back together.
func (s *OrganizationService) CreateWithOwner(ctx context.Context, ownerID string, input CreateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var org *models.Organization
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		org, err = createOrganization(tx, ownerID, input, s.now())
		return err
	})
	if err != nil {
		return nil, s.translate(err, "create organization")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		OrganizationID: stringPtr(org.ID),
		UserID:         stringPtr(ownerID),
		Action:         "organization.create",
		Resource:       org.ID,
		Result:         AuditSuccess,
		Metadata:       map[string]any{"name": org.Name, "slug": org.Slug},
	})
	return org, nil
}

// createOrganization runs inside the caller's transaction so registration can
// create the user and its default organization atomically.
func createOrganization(tx *gorm.DB, ownerID string, input CreateOrganizationInput, now time.Time) (*models.Organization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, apperrors.FieldError("owner", "This field is required.")
	}

	slug, err := uniqueSlug(tx, name)
	if err != nil {
		return nil, err
	}

	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = defaultTimezone
	}

	org := &models.Organization{
		Name:      name,
		Slug:      slug,
		Subdomain: optionalID(input.Subdomain),
		OwnerID:   ownerID,
		IsActive:  true,
		Timezone:  timezone,
	}
	if err := tx.Create(org).Error; err != nil {
		return nil, err
	}

	admin, err := seedSystemRoles(tx, org.ID)
	if err != nil {
		return nil, err
	}

	if adminID := optionalID(input.AdminUserID); adminID != nil && *adminID != ownerID {
		membership := models.Membership{
			OrganizationID:     org.ID,
			UserID:             *adminID,
			RoleID:             stringPtr(admin.ID),
			JoinedAt:           now,
			IsActive:           true,
			InvitationAccepted: true,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return nil, err
		}
	}

	trialEnds := now.Add(trialPeriod)
	subscription := models.Subscription{
		OrganizationID:     org.ID,
		Plan:               models.PlanStarter,
		BillingCycle:       models.BillingMonthly,
		Status:             models.SubscriptionTrialing,
		TrialEndsAt:        &trialEnds,
		CurrentPeriodStart: &now,
		CurrentPeriodEnd:   &trialEnds,
		UserLimit:          models.DefaultUserLimit,
	}
	if err := tx.Create(&subscription).Error; err != nil {
		return nil, err
	}
	return org, nil
}

// seedSystemRoles creates the Admin and Staff roles and returns Admin.
func seedSystemRoles(tx *gorm.DB, organizationID string) (*models.Role, error) {
	roles := []models.Role{
		{
			OrganizationID: organizationID,
			Name:           models.RoleAdmin,
			Description:    "Full access to the organization",
			Kind:           models.RoleKindSystem,
			Permissions:    datatypes.JSONSlice[string]{"*"},
		},
		{
			OrganizationID: organizationID,
			Name:           models.RoleStaff,
			Description:    "Standard organization member",
			Kind:           models.RoleKindSystem,
			Permissions:    datatypes.JSONSlice[string]{},
		},
	}
	if err := tx.Create(&roles).Error; err != nil {
		return nil, err
	}
	return &roles[0], nil
}

func slugify(name string) string {
	slug := strings.Trim(slugSeparators.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if len(slug) > maxSlugLength {
		slug = strings.Trim(slug[:maxSlugLength], "-")
	}
	if slug == "" {
		slug = "organization"
	}
	return slug
}

func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slugify(name)

	var taken []string
	if err := tx.Model(&models.Organization{}).
		Where("slug = ? OR slug LIKE ?", base, base+"-%").
		Pluck("slug", &taken).Error; err != nil {
		return "", err
	}
	used := make(map[string]struct{}, len(taken))
	for _, slug := range taken {
		used[slug] = struct{}{}
	}

	candidate := base
	for i := 1; ; i++ {
		if _, exists := used[candidate]; !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
}

// Create lets a superuser register an organization they own.
func (s *OrganizationService) Create(ctx context.Context, actorID string, input CreateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	var actor models.User
	err := s.db.WithContext(ctx).Select("id", "is_superuser").Take(&actor, "id = ?", actorID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("organization service: load actor: %w", err)
	}
	if !actor.IsSuperuser {
		return nil, apperrors.NewPermissionDenied("Only superusers can create organizations.")
	}
	return s.CreateWithOwner(ctx, actorID, input)
}

// List returns organizations the user owns or belongs to.
func (s *OrganizationService) List(ctx context.Context, userID string, q ListQuery) (Page[models.Organization], error) {
	ctx = ensureContext(ctx)

	ids, err := s.resolver.OrganizationIDsForUser(ctx, userID)
	if err != nil {
		return Page[models.Organization]{}, err
	}
	query := s.db.WithContext(ctx).Model(&models.Organization{}).Where("id IN ?", ids)
	page, err := paginate[models.Organization](query, organizationListSpec, "organizations", q)
	if err != nil {
		return page, fmt.Errorf("organization service: %w", err)
	}
	return page, nil
}

var organizationListSpec = ListSpec{
	SearchFields: []string{"name", "slug"},
	Filters:      map[string]string{"is_active": "is_active"},
	Orderings:    map[string]string{"name": "name", "created_at": "created_at"},
	DefaultOrder: "organizations.name ASC",
}

// Get loads an organization visible to userID.
func (s *OrganizationService) Get(ctx context.Context, userID, id string) (*models.Organization, error) {
	ctx = ensureContext(ctx)

	var org models.Organization
	err := s.db.WithContext(ctx).Take(&org, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Organization")
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: get organization: %w", err)
	}

	ok, err := s.resolver.UserInOrganization(ctx, userID, &org)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, notFound("Organization")
	}
	return &org, nil
}

// Update modifies an organization. Only the owner may call it.
func (s *OrganizationService) Update(ctx context.Context, userID, id string, input UpdateOrganizationInput) (*models.Organization, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	org, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if org.OwnerID != userID {
		return nil, errOwnerOnly
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.FieldError("name", "This field may not be blank.")
		}
		updates["name"] = name
	}
	if input.Subdomain != nil {
		updates["subdomain"] = optionalID(input.Subdomain)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if len(updates) == 0 {
		return org, nil
	}

	if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
		return nil, s.translate(err, "update organization")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		OrganizationID: stringPtr(org.ID),
		UserID:         stringPtr(userID),
		Action:         "organization.update",
		Resource:       org.ID,
		Result:         AuditSuccess,
		Metadata:       updates,
	})
	return s.Get(ctx, userID, id)
}

// Delete removes an organization and everything it owns. Only the owner may call it.
func (s *OrganizationService) Delete(ctx context.Context, userID, id string) error {
	ctx = ensureContext(ctx)

	org, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if org.OwnerID != userID {
		return errOwnerOnly
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return purgeOrganization(tx, org.ID)
	}); err != nil {
		return fmt.Errorf("organization service: delete organization: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(userID),
		Action:   "organization.delete",
		Resource: org.ID,
		Result:   AuditSuccess,
		Metadata: map[string]any{"name": org.Name},
	})
	return nil
}

// tenantTables lists organization owned tables, children before parents.
var tenantTables = []any{
	&models.ScheduledReport{},
	&models.Report{},
	&models.Email{},
	&models.EmailCampaign{},
	&models.EmailTemplate{},
	&models.Activity{},
	&models.Task{},
	&models.Opportunity{},
	&models.OpportunityStage{},
	&models.Lead{},
	&models.Contact{},
	&models.Company{},
	&models.Tag{},
	&models.CustomField{},
	&models.Invitation{},
	&models.Membership{},
	&models.Team{},
	&models.Role{},
	&models.Subscription{},
	&models.Notification{},
}

// joinTables are many2many tables keyed by one tenant owned parent.
var joinTables = []struct {
	table, column, parent string
}{
	{"contact_tags", "contact_id", "contacts"},
	{"lead_tags", "lead_id", "leads"},
	{"team_members", "team_id", "teams"},
	{"invitation_teams", "invitation_id", "invitations"},
}

func purgeOrganization(tx *gorm.DB, organizationID string) error {
	for _, join := range joinTables {
		parents := tx.Table(join.parent).Select("id").Where("organization_id = ?", organizationID)
		if err := tx.Exec("DELETE FROM "+join.table+" WHERE "+join.column+" IN (?)", parents).Error; err != nil {
			return fmt.Errorf("purge %s: %w", join.table, err)
		}
	}

	opportunities := tx.Model(&models.Opportunity{}).Select("id").Where("organization_id = ?", organizationID)
	if err := tx.Where("opportunity_id IN (?)", opportunities).Delete(&models.OpportunityLineItem{}).Error; err != nil {
		return fmt.Errorf("purge line items: %w", err)
	}

	for _, model := range tenantTables {
		if err := tx.Where("organization_id = ?", organizationID).Delete(model).Error; err != nil {
			return fmt.Errorf("purge %T: %w", model, err)
		}
	}
	return tx.Delete(&models.Organization{}, "id = ?", organizationID).Error
}

// Settings returns the settings block of an organization visible to userID.
func (s *OrganizationService) Settings(ctx context.Context, userID, id string) (*OrganizationSettings, error) {
	org, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return settingsOf(org), nil
}

// UpdateSettings patches timezone, business hours and branding. Admin only.
func (s *OrganizationService) UpdateSettings(ctx context.Context, userID, id string, input UpdateSettingsInput) (*OrganizationSettings, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	org, err := s.adminOrganization(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Timezone != nil {
		updates["timezone"] = strings.TrimSpace(*input.Timezone)
	}
	if input.BusinessHours != nil {
		updates["business_hours"] = datatypes.JSONMap(input.BusinessHours)
	}
	if input.FaviconURL != nil {
		updates["favicon_url"] = strings.TrimSpace(*input.FaviconURL)
	}
	if input.PrimaryColor != nil {
		updates["primary_color"] = strings.TrimSpace(*input.PrimaryColor)
	}
	if input.SecondaryColor != nil {
		updates["secondary_color"] = strings.TrimSpace(*input.SecondaryColor)
	}
	if input.CustomDomain != nil {
		updates["custom_domain"] = strings.ToLower(strings.TrimSpace(*input.CustomDomain))
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(org).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("organization service: update settings: %w", err)
		}
		recordAudit(s.audit, ctx, AuditEntry{
			OrganizationID: stringPtr(org.ID),
			UserID:         stringPtr(userID),
			Action:         "organization.settings.update",
			Resource:       org.ID,
			Result:         AuditSuccess,
		})
	}
	return s.Settings(ctx, userID, id)
}

// UploadLogo stores a logo through the storage backend and records its URL. Admin only.
func (s *OrganizationService) UploadLogo(ctx context.Context, userID, id string, upload LogoUpload) (*OrganizationSettings, error) {
	ctx = ensureContext(ctx)
	if s.storage == nil {
		return nil, apperrors.NewBadRequest("File storage is not configured.")
	}

	org, err := s.adminOrganization(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if upload.Body == nil {
		return nil, apperrors.FieldError("logo", "No file was submitted.")
	}
	if upload.Size > maxLogoSize {
		return nil, apperrors.FieldError("logo", "File too large. Maximum size is 5MB.")
	}
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	ext, ok := logoExtensions[contentType]
	if !ok {
		return nil, apperrors.FieldError("logo", "Invalid file type. Allowed types: png, jpeg, gif, webp.")
	}

	key := path.Join("organizations", org.ID, "logo-"+uuid.NewString()+ext)
	url, err := s.storage.Put(ctx, key, upload.Body, upload.Size, contentType)
	if err != nil {
		return nil, fmt.Errorf("organization service: store logo: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(org).Update("logo_url", url).Error; err != nil {
		return nil, fmt.Errorf("organization service: save logo url: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		OrganizationID: stringPtr(org.ID),
		UserID:         stringPtr(userID),
		Action:         "organization.logo.upload",
		Resource:       org.ID,
		Result:         AuditSuccess,
		Metadata:       map[string]any{"filename": upload.Filename, "size": upload.Size},
	})
	return s.Settings(ctx, userID, id)
}

func (s *OrganizationService) adminOrganization(ctx context.Context, userID, id string) (*models.Organization, error) {
	org, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolver.EnsureAdmin(ctx, userID, org); err != nil {
		return nil, err
	}
	return org, nil
}

func settingsOf(org *models.Organization) *OrganizationSettings {
	hours := map[string]any(org.BusinessHours)
	if hours == nil {
		hours = map[string]any{}
	}
	return &OrganizationSettings{
		Timezone:       org.Timezone,
		BusinessHours:  hours,
		LogoURL:        org.LogoURL,
		FaviconURL:     org.FaviconURL,
		PrimaryColor:   org.PrimaryColor,
		SecondaryColor: org.SecondaryColor,
		CustomDomain:   org.CustomDomain,
	}
}

func (s *OrganizationService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "subdomain") {
			return uniqueViolation("subdomain", "Organization with this subdomain already exists.")
		}
		if strings.Contains(lower, "membership") || strings.Contains(lower, "user_id") {
			return uniqueViolation("admin_user", "User is already a member of this organization.")
		}
		return uniqueViolation("slug", "Organization with this slug already exists.")
	}
	return fmt.Errorf("organization service: %s: %w", verb, err)
}
