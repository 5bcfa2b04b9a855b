package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
)

// Checker evaluates a user's permissions inside one organization. Superusers
// and the organization owner hold every permission; everyone else gets what
// their active membership's role grants.
type Checker struct {
	db *gorm.DB
}

// NewChecker constructs a permission checker backed by the provided database.
func NewChecker(db *gorm.DB) (*Checker, error) {
	if db == nil {
		return nil, errors.New("permission checker: db is required")
	}
	return &Checker{db: db}, nil
}

// Check determines whether the user has the specified permission in the organization.
func (c *Checker) Check(ctx context.Context, orgID, userID, permissionID string) (bool, error) {
	permissionID = strings.TrimSpace(permissionID)
	if permissionID == "" {
		return false, errors.New("permission checker: permission id is required")
	}
	if _, ok := Get(permissionID); !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownPermission, permissionID)
	}

	granted, err := c.grants(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	_, ok := granted[permissionID]
	return ok, nil
}

// Effective returns the sorted list of permissions the user holds in the organization.
func (c *Checker) Effective(ctx context.Context, orgID, userID string) ([]string, error) {
	granted, err := c.grants(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(granted))
	for id := range granted {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (c *Checker) grants(ctx context.Context, orgID, userID string) (map[string]struct{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	orgID = strings.TrimSpace(orgID)
	userID = strings.TrimSpace(userID)
	if orgID == "" || userID == "" {
		return nil, errors.New("permission checker: organization and user are required")
	}

	db := c.db.WithContext(ctx)

	var user models.User
	if err := db.Select("id", "is_superuser").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("permission checker: load user: %w", err)
	}
	if user.IsSuperuser {
		return Expand([]string{Wildcard})
	}

	var owned int64
	if err := db.Model(&models.Organization{}).
		Where("id = ? AND owner_id = ?", orgID, userID).
		Count(&owned).Error; err != nil {
		return nil, fmt.Errorf("permission checker: load organization: %w", err)
	}
	if owned > 0 {
		return Expand([]string{Wildcard})
	}

	var membership models.Membership
	err := db.Preload("Role").
		Where("organization_id = ? AND user_id = ? AND is_active = ?", orgID, userID, true).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("permission checker: load membership: %w", err)
	}
	if membership.Role == nil {
		return map[string]struct{}{}, nil
	}
	return Expand(membership.Role.Permissions)
}
