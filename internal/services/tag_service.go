package services

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// TagInput creates or patches a tag.
type TagInput struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=50"`
	Color *string `json:"color" validate:"omitempty,hexcolor"`
}

// TagService manages contact and lead tags.
type TagService struct {
	store *ScopedStore[models.Tag, *models.Tag]
}

// NewTagService constructs a TagService.
func NewTagService(db *gorm.DB, audit *AuditService) (*TagService, error) {
	store, err := NewScopedStore[models.Tag](db, audit, "tag", "Tag", ListSpec{
		SearchFields: []string{"name"},
		Orderings:    map[string]string{"name": "name", "created_at": "created_at"},
		DefaultOrder: "tags.name ASC",
	})
	if err != nil {
		return nil, err
	}
	return &TagService{store: store}, nil
}

func (s *TagService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Tag], error) {
	return s.store.List(ctx, scope, q)
}

func (s *TagService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Tag, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *TagService) Create(ctx context.Context, scope tenancy.Scope, input TagInput) (*models.Tag, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	tag := &models.Tag{Name: strings.TrimSpace(*input.Name)}
	if input.Color != nil {
		tag.Color = *input.Color
	}
	err := s.store.Create(ctx, scope, tag, nil, func(tx *gorm.DB) error {
		return uniqueName(tx, &models.Tag{}, tag.OrganizationID, "name", tag.Name, tag.ID, "A tag with this name already exists.")
	})
	if err != nil {
		return nil, err
	}
	return tag, nil
}

func (s *TagService) Update(ctx context.Context, scope tenancy.Scope, id string, input TagInput) (*models.Tag, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Name != nil {
		updates["name"] = strings.TrimSpace(*input.Name)
	}
	if input.Color != nil {
		updates["color"] = *input.Color
	}
	return s.store.Update(ctx, scope, id, updates, nil, func(tx *gorm.DB, tag *models.Tag) error {
		if name, ok := updates["name"].(string); ok {
			return uniqueName(tx, &models.Tag{}, tag.OrganizationID, "name", name, tag.ID, "A tag with this name already exists.")
		}
		return nil
	})
}

func (s *TagService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	ctx = ensureContext(ctx)
	tag, err := s.store.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	return s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, join := range []string{"contact_tags", "lead_tags"} {
			if err := tx.Exec("DELETE FROM "+join+" WHERE tag_id = ?", tag.ID).Error; err != nil {
				return err
			}
		}
		return tx.Delete(tag).Error
	})
}

// loadTags returns tags of organizationID; any foreign or unknown id is a
// field error on "tags".
func loadTags(tx *gorm.DB, organizationID string, ids []string) ([]models.Tag, error) {
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	var tags []models.Tag
	if err := tx.Where("organization_id = ? AND id IN ?", organizationID, ids).Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) != len(ids) {
		return nil, apperrors.FieldError("tags", "Must belong to the same organization.")
	}
	return tags, nil
}

// uniqueName rejects a second row of model with the same column value within
// one organization. excludeID skips the row being written.
func uniqueName(tx *gorm.DB, model any, organizationID, column, value, excludeID, message string) error {
	var count int64
	query := tx.Model(model).Where("organization_id = ? AND LOWER("+column+") = ?", organizationID, strings.ToLower(value))
	if excludeID != "" {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return apperrors.FieldError(column, message)
	}
	return nil
}
