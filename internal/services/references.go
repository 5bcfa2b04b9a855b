package services

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// ReferenceCheck names a foreign reference that must live in the same organization
// as the record being written. Member checks validate a user reference instead.
type ReferenceCheck struct {
	Field  string
	Model  any
	ID     *string
	Member bool
}

// Ref checks a tenant-owned record reference.
func Ref(field string, model any, id *string) ReferenceCheck {
	return ReferenceCheck{Field: field, Model: model, ID: id}
}

// MemberRef checks that a referenced user is the owner or an active member.
func MemberRef(field string, userID *string) ReferenceCheck {
	return ReferenceCheck{Field: field, ID: userID, Member: true}
}

func checkReferences(tx *gorm.DB, organizationID string, checks ...ReferenceCheck) error {
	for _, check := range checks {
		if check.ID == nil || strings.TrimSpace(*check.ID) == "" {
			continue
		}
		id := strings.TrimSpace(*check.ID)
		if !models.ValidID(id) {
			return apperrors.FieldError(check.Field, "Must be a valid UUID.")
		}

		var (
			count int64
			err   error
		)
		if check.Member {
			count, err = memberCount(tx, organizationID, id)
		} else {
			err = tx.Model(check.Model).
				Where("id = ? AND organization_id = ?", id, organizationID).
				Count(&count).Error
		}
		if err != nil {
			return fmt.Errorf("check %s reference: %w", check.Field, err)
		}
		if count == 0 {
			if check.Member {
				return apperrors.FieldError(check.Field, "User must belong to the same organization.")
			}
			return apperrors.FieldError(check.Field, "Must belong to the same organization.")
		}
	}
	return nil
}

func memberCount(tx *gorm.DB, organizationID, userID string) (int64, error) {
	var count int64
	err := tx.Model(&models.Organization{}).
		Where("id = ?", organizationID).
		Where("owner_id = ? OR EXISTS (?)", userID,
			tx.Session(&gorm.Session{NewDB: true}).Model(&models.Membership{}).
				Select("1").
				Where("memberships.organization_id = organizations.id AND memberships.user_id = ? AND memberships.is_active = ?", userID, true)).
		Count(&count).Error
	return count, err
}
