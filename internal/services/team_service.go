package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

// UpdateTeamInput describes mutable team fields.
type UpdateTeamInput struct {
	Name        *string `json:"name" validate:"omitempty,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// TeamService handles team lifecycle and membership management.
type TeamService struct {
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("team service: resolver is required")
	}
	return &TeamService{db: db, audit: audit, resolver: resolver}, nil
}

var teamListSpec = ListSpec{
	SearchFields: []string{"name", "description"},
	Orderings:    map[string]string{"name": "name", "created_at": "created_at"},
	DefaultOrder: "teams.name ASC",
	Preloads:     []string{"Members", "Members.User"},
}

// List returns the teams of the scope's organization.
func (s *TeamService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Team], error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return Page[models.Team]{}, err
	}
	query := s.db.WithContext(ctx).Model(&models.Team{}).Where("organization_id = ?", org.ID)
	page, err := paginate[models.Team](query, teamListSpec, "teams", q)
	if err != nil {
		return page, fmt.Errorf("team service: %w", err)
	}
	return page, nil
}

// Get loads a team with its members.
func (s *TeamService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Team, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx).Preload("Members").Preload("Members.User"), org.ID, id)
}

func (s *TeamService) load(db *gorm.DB, organizationID, id string) (*models.Team, error) {
	var team models.Team
	err := db.Where("organization_id = ? AND id = ?", organizationID, strings.TrimSpace(id)).Take(&team).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("Team")
	}
	if err != nil {
		return nil, fmt.Errorf("team service: load team: %w", err)
	}
	return &team, nil
}

// Create registers a new team. Admin only.
func (s *TeamService) Create(ctx context.Context, scope tenancy.Scope, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	team := &models.Team{
		OrganizationID: org.ID,
		Name:           strings.TrimSpace(input.Name),
		Description:    strings.TrimSpace(input.Description),
	}
	if err := s.db.WithContext(ctx).Create(team).Error; err != nil {
		return nil, s.translate(err, "create team")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "team.create", team.ID, map[string]any{"name": team.Name})
	return team, nil
}

// Update modifies team metadata. Admin only.
func (s *TeamService) Update(ctx context.Context, scope tenancy.Scope, id string, input UpdateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}
	team, err := s.load(s.db.WithContext(ctx), org.ID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.FieldError("name", "This field may not be blank.")
		}
		updates["name"] = name
	}
	if input.Description != nil {
		updates["description"] = strings.TrimSpace(*input.Description)
	}
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(team).Updates(updates).Error; err != nil {
			return nil, s.translate(err, "update team")
		}
		scopedAudit(s.audit, ctx, scope, org.ID, "team.update", team.ID, nil)
	}
	return s.Get(ctx, scope, id)
}

// Delete removes a team and its member links. Admin only.
func (s *TeamService) Delete(ctx context.Context, scope tenancy.Scope, id string) error {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team, err := s.load(tx, org.ID, id)
		if err != nil {
			return err
		}
		if err := tx.Model(team).Association("Members").Clear(); err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM invitation_teams WHERE team_id = ?", team.ID).Error; err != nil {
			return err
		}
		return tx.Delete(team).Error
	})
	if err != nil {
		return s.translate(err, "delete team")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "team.delete", id, nil)
	return nil
}

// AddMember links a membership of the same organization to the team. Admin only.
func (s *TeamService) AddMember(ctx context.Context, scope tenancy.Scope, teamID, membershipID string) (*models.Team, error) {
	return s.changeMember(ctx, scope, teamID, membershipID, true)
}

// RemoveMember unlinks a membership from the team. Admin only.
func (s *TeamService) RemoveMember(ctx context.Context, scope tenancy.Scope, teamID, membershipID string) (*models.Team, error) {
	return s.changeMember(ctx, scope, teamID, membershipID, false)
}

func (s *TeamService) changeMember(ctx context.Context, scope tenancy.Scope, teamID, membershipID string, add bool) (*models.Team, error) {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		team, err := s.load(tx, org.ID, teamID)
		if err != nil {
			return err
		}

		var membership models.Membership
		err = tx.Where("organization_id = ? AND id = ?", org.ID, strings.TrimSpace(membershipID)).Take(&membership).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.FieldError("member", "Member must belong to the same organization.")
		}
		if err != nil {
			return err
		}

		var linked int64
		if err := tx.Table("team_members").
			Where("team_id = ? AND membership_id = ?", team.ID, membership.ID).
			Count(&linked).Error; err != nil {
			return err
		}

		switch {
		case add && linked > 0:
			return apperrors.FieldError("member", "Member is already in this team.")
		case !add && linked == 0:
			return apperrors.NewNotFound("Member is not in this team.")
		case add:
			return tx.Model(team).Association("Members").Append(&membership)
		default:
			return tx.Model(team).Association("Members").Delete(&membership)
		}
	})
	if err != nil {
		return nil, s.translate(err, "change team member")
	}

	action := "team.member.remove"
	if add {
		action = "team.member.add"
	}
	scopedAudit(s.audit, ctx, scope, org.ID, action, teamID, map[string]any{"member_id": membershipID})
	return s.Get(ctx, scope, teamID)
}

func (s *TeamService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		return uniqueViolation("name", "A team with this name already exists in the organization.")
	}
	return fmt.Errorf("team service: %s: %w", verb, err)
}
