package services

import (
	"context"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// StageInput creates or patches a pipeline stage.
type StageInput struct {
	Name          *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Order         *int     `json:"order" validate:"omitempty,min=0"`
	Probability   *float64 `json:"probability" validate:"omitempty,min=0,max=100"`
	IsClosedStage *bool    `json:"is_closed_stage"`
	IsWonStage    *bool    `json:"is_won_stage"`
	Color         *string  `json:"color" validate:"omitempty,hexcolor"`
}

// StageService manages the pipeline stages of an organization.
type StageService struct {
	store *ScopedStore[models.OpportunityStage, *models.OpportunityStage]
}

// NewStageService constructs a StageService.
func NewStageService(db *gorm.DB, audit *AuditService) (*StageService, error) {
	store, err := NewScopedStore[models.OpportunityStage](db, audit, "stage", "Stage", ListSpec{
		SearchFields: []string{"name"},
		Orderings:    map[string]string{"order": "position", "created_at": "created_at"},
		DefaultOrder: "opportunity_stages.position ASC, opportunity_stages.created_at ASC",
	})
	if err != nil {
		return nil, err
	}
	return &StageService{store: store}, nil
}

func (s *StageService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.OpportunityStage], error) {
	return s.store.List(ctx, scope, q)
}

func (s *StageService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.OpportunityStage, error) {
	return s.store.Get(ctx, scope, id)
}

func (s *StageService) Create(ctx context.Context, scope tenancy.Scope, input StageInput) (*models.OpportunityStage, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	if input.Name == nil || strings.TrimSpace(*input.Name) == "" {
		return nil, apperrors.FieldError("name", "This field is required.")
	}
	stage := &models.OpportunityStage{Name: strings.TrimSpace(*input.Name), Color: "#3b82f6"}
	if input.Order != nil {
		stage.Order = *input.Order
	}
	if input.Probability != nil {
		stage.Probability = *input.Probability
	}
	if input.IsClosedStage != nil {
		stage.IsClosedStage = *input.IsClosedStage
	}
	if input.IsWonStage != nil {
		stage.IsWonStage = *input.IsWonStage
	}
	if input.Color != nil {
		stage.Color = *input.Color
	}
	if err := s.store.Create(ctx, scope, stage, nil, nil); err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *StageService) Update(ctx context.Context, scope tenancy.Scope, id string, input StageInput) (*models.OpportunityStage, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}
	updates := map[string]any{}
	setString(updates, "name", input.Name)
	setString(updates, "color", input.Color)
	if input.Order != nil {
		updates["position"] = *input.Order
	}
	if input.Probability != nil {
		updates["probability"] = *input.Probability
	}
	if input.IsClosedStage != nil {
		updates["is_closed_stage"] = *input.IsClosedStage
	}
	if input.IsWonStage != nil {
		updates["is_won_stage"] = *input.IsWonStage
	}
	return s.store.Update(ctx, scope, id, updates, nil, nil)
}

func (s *StageService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	return s.store.Delete(ctx, scope, id)
}

// Reorder assigns consecutive positions following stageIDs. Unknown or foreign
// ids are skipped.
func (s *StageService) Reorder(ctx context.Context, scope tenancy.Scope, stageIDs []string) ([]models.OpportunityStage, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	stageIDs = normaliseIDs(stageIDs)
	if len(stageIDs) == 0 {
		return nil, apperrors.FieldError("stage_ids", "This field is required.")
	}

	err = s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var known []string
		if err := tx.Model(&models.OpportunityStage{}).
			Where("organization_id = ? AND id IN ?", org.ID, stageIDs).
			Pluck("id", &known).Error; err != nil {
			return err
		}
		position := 0
		for _, id := range stageIDs {
			if !slices.Contains(known, id) {
				continue
			}
			if err := tx.Model(&models.OpportunityStage{}).Where("id = ?", id).
				Update("position", position).Error; err != nil {
				return err
			}
			position++
		}
		return nil
	})
	if err != nil {
		return nil, s.store.translate(err, "reorder")
	}
	scopedAudit(s.store.audit, ctx, scope, org.ID, "stage.reorder", "", map[string]any{"stage_ids": stageIDs})

	var stages []models.OpportunityStage
	if err := s.store.DB().WithContext(ctx).
		Where("organization_id = ?", org.ID).
		Order("position ASC, created_at ASC").
		Find(&stages).Error; err != nil {
		return nil, s.store.translate(err, "reorder")
	}
	return stages, nil
}
