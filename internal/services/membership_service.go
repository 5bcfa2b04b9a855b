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

var errUserLimitReached = apperrors.NewValidation("User limit reached for the current plan. Upgrade your subscription to add more members.", nil)

// AddMemberInput adds an existing user by id, or a user identified by email
// that is created when missing.
type AddMemberInput struct {
	UserID    *string  `json:"user_id" validate:"omitempty,uuid"`
	Email     string   `json:"email" validate:"omitempty,email"`
	FirstName string   `json:"first_name" validate:"max=150"`
	LastName  string   `json:"last_name" validate:"max=150"`
	Password  string   `json:"password" validate:"omitempty,min=8"`
	RoleID    *string  `json:"role" validate:"omitempty,uuid"`
	TeamIDs   []string `json:"teams" validate:"omitempty,dive,uuid"`
}

// UpdateMemberInput patches a membership. A non-nil RoleID pointing at ""
// clears the role.
type UpdateMemberInput struct {
	RoleID   *string   `json:"role" validate:"omitempty,uuid"`
	IsActive *bool     `json:"is_active"`
	TeamIDs  *[]string `json:"teams" validate:"omitempty,dive,uuid"`
}

// MembershipOption customises MembershipService.
type MembershipOption func(*MembershipService)

// WithMembershipClock injects a custom clock.
func WithMembershipClock(clock func() time.Time) MembershipOption {
	return func(s *MembershipService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MembershipService manages who belongs to an organization.
type MembershipService struct {
	db       *gorm.DB
	audit    *AuditService
	resolver *tenancy.Resolver
	now      func() time.Time
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, audit *AuditService, resolver *tenancy.Resolver, opts ...MembershipOption) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("membership service: resolver is required")
	}
	svc := &MembershipService{db: db, audit: audit, resolver: resolver, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

var membershipListSpec = ListSpec{
	SearchFields: []string{"users.email", "users.first_name", "users.last_name"},
	Filters:      map[string]string{"role_id": "role_id"},
	Orderings:    map[string]string{"joined_at": "joined_at", "email": "users.email"},
	DefaultOrder: "memberships.joined_at ASC",
	Preloads:     []string{"User", "Role", "Teams"},
	Custom: func(query *gorm.DB, filters map[string]string) *gorm.DB {
		switch strings.ToLower(strings.TrimSpace(filters["status"])) {
		case "active":
			query = query.Where("memberships.is_active = ?", true)
		case "inactive":
			query = query.Where("memberships.is_active = ?", false)
		case "pending":
			query = query.Where("memberships.invitation_accepted = ?", false)
		}
		return query
	},
}

// List returns the memberships of the scope's organization.
func (s *MembershipService) List(ctx context.Context, scope tenancy.Scope, q ListQuery) (Page[models.Membership], error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return Page[models.Membership]{}, err
	}

	query := s.db.WithContext(ctx).Model(&models.Membership{}).
		Joins("JOIN users ON users.id = memberships.user_id").
		Where("memberships.organization_id = ?", org.ID)
	page, err := paginate[models.Membership](query, membershipListSpec, "memberships", q)
	if err != nil {
		return page, fmt.Errorf("membership service: %w", err)
	}
	return page, nil
}

// Get loads one membership of the scope's organization.
func (s *MembershipService) Get(ctx context.Context, scope tenancy.Scope, id string) (*models.Membership, error) {
	ctx = ensureContext(ctx)
	org, err := requireOrganization(scope)
	if err != nil {
		return nil, err
	}
	return s.load(s.db.WithContext(ctx), org.ID, id)
}

func (s *MembershipService) load(db *gorm.DB, organizationID, id string) (*models.Membership, error) {
	var membership models.Membership
	err := db.Preload("User").Preload("Role").Preload("Teams").
		Where("organization_id = ? AND id = ?", organizationID, strings.TrimSpace(id)).
		Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("Member not found.")
	}
	if err != nil {
		return nil, fmt.Errorf("membership service: load member: %w", err)
	}
	return &membership, nil
}

// Add creates a membership. Admin only.
func (s *MembershipService) Add(ctx context.Context, scope tenancy.Scope, input AddMemberInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	userID := optionalID(input.UserID)
	email := normaliseEmail(input.Email)
	if (userID == nil) == (email == "") {
		return nil, apperrors.FieldError("user_id", "Provide either user_id or email.")
	}

	var membership *models.Membership
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.memberUser(tx, userID, email, input)
		if err != nil {
			return err
		}
		if user.ID == org.OwnerID {
			return apperrors.FieldError("user_id", "The organization owner is already a member.")
		}
		if err := checkReferences(tx, org.ID, Ref("role", &models.Role{}, optionalID(input.RoleID))); err != nil {
			return err
		}
		teams, err := loadTeams(tx, org.ID, input.TeamIDs)
		if err != nil {
			return err
		}
		if err := ensureSeatAvailable(tx, org); err != nil {
			return err
		}

		membership = &models.Membership{
			OrganizationID:     org.ID,
			UserID:             user.ID,
			RoleID:             optionalID(input.RoleID),
			JoinedAt:           s.now(),
			IsActive:           true,
			InvitationAccepted: true,
		}
		if err := tx.Omit("Teams").Create(membership).Error; err != nil {
			if isUniqueConstraintError(err) {
				return uniqueViolation("user_id", "User is already a member of this organization.")
			}
			return err
		}
		if len(teams) > 0 {
			return tx.Model(membership).Association("Teams").Replace(teams)
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "add member")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "member.add", membership.ID, map[string]any{"user_id": membership.UserID})
	return s.Get(ctx, scope, membership.ID)
}

func (s *MembershipService) memberUser(tx *gorm.DB, userID *string, email string, input AddMemberInput) (*models.User, error) {
	if userID != nil {
		var user models.User
		err := tx.Take(&user, "id = ?", *userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.FieldError("user_id", "User not found.")
		}
		if err != nil {
			return nil, fmt.Errorf("load user: %w", err)
		}
		return &user, nil
	}

	user, err := findUserByEmail(tx, email)
	if err != nil || user != nil {
		return user, err
	}
	return createUser(tx, newUserInput{
		Email:     email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Password:  input.Password,
	})
}

// Update patches role, active flag and teams. Admin only; the owner's
// membership cannot be modified.
func (s *MembershipService) Update(ctx context.Context, scope tenancy.Scope, id string, input UpdateMemberInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := s.load(tx, org.ID, id)
		if err != nil {
			return err
		}
		if membership.UserID == org.OwnerID {
			return errOwnerMembership
		}

		updates := map[string]any{}
		if input.RoleID != nil {
			roleID := optionalID(input.RoleID)
			if err := checkReferences(tx, org.ID, Ref("role", &models.Role{}, roleID)); err != nil {
				return err
			}
			updates["role_id"] = roleID
		}
		if input.IsActive != nil {
			if *input.IsActive && !membership.IsActive {
				if err := ensureSeatAvailable(tx, org); err != nil {
					return err
				}
			}
			updates["is_active"] = *input.IsActive
		}
		if len(updates) > 0 {
			if err := tx.Model(membership).Updates(updates).Error; err != nil {
				return err
			}
		}
		if input.TeamIDs != nil {
			teams, err := loadTeams(tx, org.ID, *input.TeamIDs)
			if err != nil {
				return err
			}
			if err := tx.Model(membership).Association("Teams").Replace(teams); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, s.translate(err, "update member")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "member.update", id, nil)
	return s.Get(ctx, scope, id)
}

// UpdateRole changes only the member's role.
func (s *MembershipService) UpdateRole(ctx context.Context, scope tenancy.Scope, id string, roleID *string) (*models.Membership, error) {
	if roleID == nil {
		roleID = stringPtr("")
	}
	return s.Update(ctx, scope, id, UpdateMemberInput{RoleID: roleID})
}

// Remove deletes a membership. Admin only; the owner cannot be removed.
func (s *MembershipService) Remove(ctx context.Context, scope tenancy.Scope, id string) error {
	ctx = ensureContext(ctx)
	org, err := requireAdmin(ctx, s.resolver, scope)
	if err != nil {
		return err
	}

	var userID string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		membership, err := s.load(tx, org.ID, id)
		if err != nil {
			return err
		}
		if membership.UserID == org.OwnerID {
			return errOwnerMembership
		}
		userID = membership.UserID
		if err := tx.Model(membership).Association("Teams").Clear(); err != nil {
			return err
		}
		return tx.Delete(membership).Error
	})
	if err != nil {
		return s.translate(err, "remove member")
	}

	scopedAudit(s.audit, ctx, scope, org.ID, "member.remove", id, map[string]any{"user_id": userID})
	return nil
}

func (s *MembershipService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return fmt.Errorf("membership service: %s: %w", verb, err)
}

// loadTeams resolves team ids that must all belong to organizationID.
func loadTeams(tx *gorm.DB, organizationID string, ids []string) ([]models.Team, error) {
	ids = normaliseIDs(ids)
	if len(ids) == 0 {
		return []models.Team{}, nil
	}
	var teams []models.Team
	if err := tx.Where("organization_id = ? AND id IN ?", organizationID, ids).Find(&teams).Error; err != nil {
		return nil, fmt.Errorf("load teams: %w", err)
	}
	if len(teams) != len(ids) {
		return nil, apperrors.FieldError("teams", "Must belong to the same organization.")
	}
	return teams, nil
}

// ensureSeatAvailable enforces the subscription user limit. The owner takes a seat.
func ensureSeatAvailable(tx *gorm.DB, org *models.Organization) error {
	var subscription models.Subscription
	err := tx.Where("organization_id = ?", org.ID).Take(&subscription).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	if subscription.UserLimit <= 0 {
		return nil
	}

	var active int64
	if err := tx.Model(&models.Membership{}).
		Where("organization_id = ? AND is_active = ? AND user_id <> ?", org.ID, true, org.OwnerID).
		Count(&active).Error; err != nil {
		return fmt.Errorf("count members: %w", err)
	}
	if active+1 >= int64(subscription.UserLimit) {
		return errUserLimitReached
	}
	return nil
}
