package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
	"github.com/charlesng35/crmhub/pkg/metrics"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountDisabled    = errors.New("auth: account disabled")
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput is one email/password login attempt.
type AuthenticateInput struct {
	Email     string
	Password  string
	IPAddress string
	UserAgent string
}

// lockout locks an account for window after limit consecutive failures.
type lockout struct {
	limit  int
	window time.Duration
}

// fail records one more failed attempt and returns the columns to persist
// along with the error the caller should see.
func (l lockout) fail(attempts int, now time.Time) (map[string]any, error) {
	columns := map[string]any{"failed_attempts": attempts}
	if attempts < l.limit {
		return columns, ErrInvalidCredentials
	}
	columns["locked_until"] = now.Add(l.window)
	return columns, ErrAccountLocked
}

// LocalProvider checks email/password credentials against the users table.
type LocalProvider struct {
	db     *gorm.DB
	now    func() time.Time
	policy lockout
}

func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}
	p := &LocalProvider{
		db:     db,
		now:    cfg.Clock,
		policy: lockout{limit: cfg.LockoutThreshold, window: cfg.LockoutDuration},
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.policy.limit <= 0 {
		p.policy.limit = defaultLockoutThreshold
	}
	if p.policy.window <= 0 {
		p.policy.window = defaultLockoutDuration
	}
	return p, nil
}

// Authenticate returns the user owning the credentials. Unknown emails,
// wrong passwords and password-less (SSO only) accounts all surface as
// ErrInvalidCredentials.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	user, err := p.verify(ctx, input)
	if outcome := attemptOutcome(err); outcome != "" {
		metrics.AuthAttempts.WithLabelValues(outcome).Inc()
	}
	return user, err
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrAccountDisabled):
		return "failure"
	}
	return ""
}

func (p *LocalProvider) verify(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)
	var user models.User
	switch err := db.Take(&user, "email = ?", email).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("local provider: load user: %w", err)
	}

	now := p.now()
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	// A lapsed lock starts the count over.
	attempts := user.FailedAttempts
	if user.LockedUntil != nil {
		attempts = 0
	}

	if user.Password == "" || !crypto.VerifyPassword(user.Password, input.Password) {
		columns, verdict := p.policy.fail(attempts+1, now)
		if user.LockedUntil != nil {
			if _, locking := columns["locked_until"]; !locking {
				columns["locked_until"] = nil
			}
		}
		if err := db.Model(&user).Updates(columns).Error; err != nil {
			return nil, fmt.Errorf("local provider: record failed attempt: %w", err)
		}
		return nil, verdict
	}

	ip := strings.TrimSpace(input.IPAddress)
	if err := db.Model(&user).Updates(map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   ip,
	}).Error; err != nil {
		return nil, fmt.Errorf("local provider: record login: %w", err)
	}
	user.FailedAttempts, user.LockedUntil = 0, nil
	user.LastLoginAt, user.LastLoginIP = &now, ip
	return &user, nil
}

// ChangePassword checks currentPassword before storing newPassword. Accounts
// without a password (SSO only) may set one without the check.
func (p *LocalProvider) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if strings.TrimSpace(userID) == "" || newPassword == "" {
		return errors.New("local provider: user id and new password are required")
	}
	db := p.db.WithContext(ctx)

	var user models.User
	switch err := db.Select("id", "password").Take(&user, "id = ?", userID).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrInvalidCredentials
	case err != nil:
		return fmt.Errorf("local provider: load user: %w", err)
	}
	if user.Password != "" && !crypto.VerifyPassword(user.Password, currentPassword) {
		return ErrInvalidCredentials
	}
	return p.SetPassword(db, user.ID, newPassword)
}

// SetPassword stores a new hash and clears any lockout. db may be a
// transaction; nil means the provider's own handle.
func (p *LocalProvider) SetPassword(db *gorm.DB, userID, newPassword string) error {
	if db == nil {
		db = p.db
	}
	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("local provider: hash password: %w", err)
	}
	res := db.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]any{
		"password":        hashed,
		"failed_attempts": 0,
		"locked_until":    nil,
	})
	if res.Error != nil {
		return fmt.Errorf("local provider: store password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidCredentials
	}
	return nil
}
