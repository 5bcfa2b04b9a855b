package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/crypto"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// generatedSecretBytes sizes the webhook secrets and integration keys issued
// when the caller does not supply one.
const generatedSecretBytes = 32

// WebhookInput creates or patches a webhook.
type WebhookInput struct {
	Name     *string   `json:"name" validate:"omitempty,min=1,max=150"`
	URL      *string   `json:"url" validate:"omitempty,url"`
	Events   *[]string `json:"events" validate:"omitempty,dive,min=1,max=100"`
	Secret   *string   `json:"secret" validate:"omitempty,max=255"`
	IsActive *bool     `json:"is_active"`
}

// WebhookService manages outbound webhook registrations.
type WebhookService struct {
	store *ScopedStore[models.Webhook, *models.Webhook]
}

// NewWebhookService constructs a WebhookService.
func NewWebhookService(db *gorm.DB, audit *AuditService) (*WebhookService, error) {
	store, err := NewScopedStore[models.Webhook](db, audit, "webhook", "Webhook", ListSpec{
		SearchFields: []string{"name", "url"},
		Filters:      map[string]string{"is_active": "is_active"},
		Orderings:    map[string]string{"name": "name", "created_at": "created_at"},
		DefaultOrder: "webhooks.name ASC",
	})
	if err != nil {
		return nil, err
	}
	return &WebhookService{store: store}, nil
}

func (s *WebhookService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Webhook], error) {
	return s.store.List(ctx, scope, q)
}

func (s *WebhookService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Webhook, error) {
	return s.store.Get(ctx, scope, id)
}

// Create registers a webhook. A signing secret is generated when none is given.
func (s *WebhookService) Create(ctx context.Context, scope tenancy.Scope, input WebhookInput) (*models.Webhook, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	for field, value := range map[string]*string{"name": input.Name, "url": input.URL} {
		if value == nil || strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(field, "This field is required.")
		}
	}

	secret := deref(input.Secret)
	if secret == "" {
		var err error
		if secret, err = crypto.GenerateToken(generatedSecretBytes); err != nil {
			return nil, fmt.Errorf("webhook service: secret: %w", err)
		}
	}
	webhook := &models.Webhook{
		Name:     strings.TrimSpace(*input.Name),
		URL:      strings.TrimSpace(*input.URL),
		Events:   stringList(input.Events),
		Secret:   secret,
		IsActive: true,
	}
	err := s.store.Create(ctx, scope, webhook, nil, deactivateOnCreate(webhook, input.IsActive, &webhook.IsActive))
	if err != nil {
		return nil, err
	}
	return webhook, nil
}

func (s *WebhookService) Update(ctx context.Context, scope tenancy.Scope, id string, input WebhookInput) (*models.Webhook, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	for column, value := range map[string]*string{"name": input.Name, "url": input.URL, "secret": input.Secret} {
		if value != nil && strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(column, "This field may not be blank.")
		}
		setString(updates, column, value)
	}
	if input.Events != nil {
		updates["events"] = stringList(input.Events)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	return s.store.Update(ctx, scope, id, updates, nil, nil)
}

func (s *WebhookService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// IntegrationKeyInput creates or patches an integration key. last_used_at is
// maintained by the server and never accepted.
type IntegrationKeyInput struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=150"`
	Key         *string   `json:"key" validate:"omitempty,min=16,max=255"`
	Permissions *[]string `json:"permissions" validate:"omitempty,dive,min=1,max=100"`
	IsActive    *bool     `json:"is_active"`
}

// IntegrationKeyService manages API keys issued to integrations.
type IntegrationKeyService struct {
	store *ScopedStore[models.IntegrationKey, *models.IntegrationKey]
}

// NewIntegrationKeyService constructs an IntegrationKeyService.
func NewIntegrationKeyService(db *gorm.DB, audit *AuditService) (*IntegrationKeyService, error) {
	store, err := NewScopedStore[models.IntegrationKey](db, audit, "integration_key", "Integration key", ListSpec{
		SearchFields: []string{"name", "key"},
		Filters:      map[string]string{"is_active": "is_active"},
		Orderings:    map[string]string{"created_at": "created_at", "updated_at": "updated_at"},
		DefaultOrder: "integration_keys.name ASC",
	})
	if err != nil {
		return nil, err
	}
	return &IntegrationKeyService{store: store}, nil
}

func (s *IntegrationKeyService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.IntegrationKey], error) {
	return s.store.List(ctx, scope, q)
}

func (s *IntegrationKeyService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.IntegrationKey, error) {
	return s.store.Get(ctx, scope, id)
}

// Create issues a key. Without an explicit key a random one is generated.
// Keys are unique across organizations.
func (s *IntegrationKeyService) Create(ctx context.Context, scope tenancy.Scope, input IntegrationKeyInput) (*models.IntegrationKey, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}

	key := deref(input.Key)
	if key == "" {
		var err error
		if key, err = crypto.GenerateToken(generatedSecretBytes); err != nil {
			return nil, fmt.Errorf("integration key service: key: %w", err)
		}
	}
	if err := uniqueKey(s.store.DB().WithContext(ensureContext(ctx)), key, ""); err != nil {
		return nil, err
	}
	record := &models.IntegrationKey{
		Name:        strings.TrimSpace(*input.Name),
		Key:         key,
		Permissions: stringList(input.Permissions),
		IsActive:    true,
	}
	err := s.store.Create(ctx, scope, record, nil, deactivateOnCreate(record, input.IsActive, &record.IsActive))
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *IntegrationKeyService) Update(ctx context.Context, scope tenancy.Scope, id string, input IntegrationKeyInput) (*models.IntegrationKey, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	for column, value := range map[string]*string{"name": input.Name, "key": input.Key} {
		if value != nil && strings.TrimSpace(*value) == "" {
			return nil, apperrors.FieldError(column, "This field may not be blank.")
		}
		setString(updates, column, value)
	}
	if input.Permissions != nil {
		updates["permissions"] = stringList(input.Permissions)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if key, ok := updates["key"].(string); ok && models.ValidID(id) {
		if err := uniqueKey(s.store.DB().WithContext(ensureContext(ctx)), key, id); err != nil {
			return nil, err
		}
	}
	return s.store.Update(ctx, scope, id, updates, nil, nil)
}

func (s *IntegrationKeyService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// uniqueKey rejects a key already held by another record in any organization.
// The unique index still guards concurrent writers.
func uniqueKey(db *gorm.DB, key, excludeID string) error {
	var count int64
	query := db.Model(&models.IntegrationKey{}).Where(&models.IntegrationKey{Key: key})
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return fmt.Errorf("integration key service: check key: %w", err)
	}
	if count > 0 {
		return apperrors.FieldError("key", "Integration key with this key already exists.")
	}
	return nil
}

// deactivateOnCreate persists an explicit is_active=false, which the column
// default would otherwise override on insert.
func deactivateOnCreate(model any, requested *bool, field *bool) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		if requested == nil || *requested {
			return nil
		}
		if err := tx.Model(model).Update("is_active", false).Error; err != nil {
			return err
		}
		*field = false
		return nil
	}
}

// stringList trims values and drops blanks; nil becomes an empty list.
func stringList(values *[]string) datatypes.JSONSlice[string] {
	out := datatypes.JSONSlice[string]{}
	if values == nil {
		return out
	}
	for _, value := range *values {
		if value = strings.TrimSpace(value); value != "" {
			out = append(out, value)
		}
	}
	return out
}
