package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
)

// newUserInput describes a user created by registration, by an admin adding
// a member, by accepting an invitation or by a first external login.
type newUserInput struct {
	Email         string
	FirstName     string
	LastName      string
	Phone         string
	Password      string
	EmailVerified bool
	AuthProvider  string
	AuthSubject   string
}

// createUser inserts a local user. An empty password leaves the account
// without a usable password until it is reset.
func createUser(tx *gorm.DB, input newUserInput) (*models.User, error) {
	email := normaliseEmail(input.Email)
	if email == "" {
		return nil, apperrors.FieldError("email", "This field is required.")
	}

	provider := strings.TrimSpace(input.AuthProvider)
	if provider == "" {
		provider = "local"
	}
	user := &models.User{
		Email:         email,
		FirstName:     strings.TrimSpace(input.FirstName),
		LastName:      strings.TrimSpace(input.LastName),
		Phone:         strings.TrimSpace(input.Phone),
		EmailVerified: input.EmailVerified,
		IsActive:      true,
		AuthProvider:  provider,
		AuthSubject:   strings.TrimSpace(input.AuthSubject),
	}
	if input.Password != "" {
		hashed, err := crypto.HashPassword(input.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.Password = hashed
	}

	if err := tx.Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, uniqueViolation("email", "A user with this email already exists.")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// findUserByEmail returns nil without error when no user matches.
func findUserByEmail(tx *gorm.DB, email string) (*models.User, error) {
	var user models.User
	err := tx.Where("LOWER(email) = ?", normaliseEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}
