package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
	"github.com/charlesng35/crmhub/pkg/mail"
)

const (
	// DefaultVerificationExpiry is the lifetime of email verification tokens.
	DefaultVerificationExpiry = 48 * time.Hour
	// DefaultPasswordResetExpiry is the lifetime of password reset tokens.
	DefaultPasswordResetExpiry = 24 * time.Hour

	defaultUserTokenBytes = 32
)

var (
	// ErrTokenNotFound indicates the token does not exist for the purpose.
	ErrTokenNotFound = errors.New("user token: not found")
	// ErrTokenExpired indicates the token has expired.
	ErrTokenExpired = errors.New("user token: expired")
	// ErrTokenUsed signals that the token has already been consumed.
	ErrTokenUsed = errors.New("user token: already used")
)

// UserTokenOption customises the UserTokenService.
type UserTokenOption func(*UserTokenService)

// WithTokenBaseURL sets the frontend base URL used in mailed links.
func WithTokenBaseURL(base string) UserTokenOption {
	return func(s *UserTokenService) {
		s.baseURL = strings.TrimRight(strings.TrimSpace(base), "/")
	}
}

// WithTokenExpiry overrides the lifetime of tokens issued for purpose.
func WithTokenExpiry(purpose string, d time.Duration) UserTokenOption {
	return func(s *UserTokenService) {
		if d > 0 {
			s.expiry[purpose] = d
		}
	}
}

// WithTokenClock injects a custom time source.
func WithTokenClock(clock func() time.Time) UserTokenOption {
	return func(s *UserTokenService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// UserTokenService issues and redeems single use tokens mailed to users:
// email verification and password reset.
type UserTokenService struct {
	db          *gorm.DB
	mailer      mail.Mailer
	baseURL     string
	expiry      map[string]time.Duration
	tokenLength int
	now         func() time.Time
}

// NewUserTokenService constructs a token service. mailer may be nil.
func NewUserTokenService(db *gorm.DB, mailer mail.Mailer, opts ...UserTokenOption) (*UserTokenService, error) {
	if db == nil {
		return nil, errors.New("user token service: db is required")
	}

	service := &UserTokenService{
		db:     db,
		mailer: mailer,
		expiry: map[string]time.Duration{
			models.TokenEmailVerification: DefaultVerificationExpiry,
			models.TokenPasswordReset:     DefaultPasswordResetExpiry,
		},
		tokenLength: defaultUserTokenBytes,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Issue creates a token for purpose, replacing any unused one, and returns the
// raw token. It runs on db so callers can include it in their transaction.
func (s *UserTokenService) Issue(db *gorm.DB, userID, purpose string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("user token service: user id is required")
	}
	expiry, ok := s.expiry[purpose]
	if !ok {
		return "", fmt.Errorf("user token service: unknown purpose %q", purpose)
	}

	token, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return "", fmt.Errorf("user token service: generate token: %w", err)
	}

	if err := db.Where("user_id = ? AND purpose = ? AND used_at IS NULL", userID, purpose).
		Delete(&models.UserToken{}).Error; err != nil {
		return "", fmt.Errorf("user token service: cleanup existing: %w", err)
	}

	record := models.UserToken{
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: crypto.HashToken(token),
		ExpiresAt: s.now().Add(expiry),
	}
	if err := db.Create(&record).Error; err != nil {
		return "", fmt.Errorf("user token service: create token: %w", err)
	}
	return token, nil
}

// Consume validates token for purpose and marks it used, returning its owner.
func (s *UserTokenService) Consume(db *gorm.DB, token, purpose string) (*models.UserToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenNotFound
	}

	var record models.UserToken
	err := db.Where("token_hash = ? AND purpose = ?", crypto.HashToken(token), purpose).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user token service: find token: %w", err)
	}

	now := s.now()
	if record.UsedAt != nil {
		return nil, ErrTokenUsed
	}
	if !record.ExpiresAt.After(now) {
		return nil, ErrTokenExpired
	}

	result := db.Model(&models.UserToken{}).
		Where("id = ? AND used_at IS NULL", record.ID).
		Update("used_at", now)
	if result.Error != nil {
		return nil, fmt.Errorf("user token service: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTokenUsed
	}
	record.UsedAt = &now
	return &record, nil
}

// CleanupExpired removes expired and consumed tokens.
func (s *UserTokenService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ensureContext(ctx)).
		Where("expires_at < ? OR used_at IS NOT NULL", s.now()).
		Delete(&models.UserToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("user token service: cleanup: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SendVerification mails the verification link. SMTP being disabled is not an error.
func (s *UserTokenService) SendVerification(ctx context.Context, user *models.User, token string) error {
	link := s.link("/verify-email", token)
	return s.send(ctx, mail.Message{
		To:      []string{user.Email},
		Subject: "Verify your email address",
		Text: fmt.Sprintf("Hello %s,\n\nPlease confirm your email address by visiting the link below:\n%s\n\nIf you did not create an account, you can ignore this message.\n",
			user.FullName(), link),
	})
}

// SendPasswordReset mails the password reset link.
func (s *UserTokenService) SendPasswordReset(ctx context.Context, user *models.User, token string) error {
	link := s.link("/reset-password", token)
	return s.send(ctx, mail.Message{
		To:      []string{user.Email},
		Subject: "Reset your password",
		Text: fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account. Use the link below to choose a new password:\n%s\n\nThe link expires in %s. If you did not request a reset, you can ignore this message.\n",
			user.FullName(), link, s.expiry[models.TokenPasswordReset]),
	})
}

func (s *UserTokenService) send(ctx context.Context, msg mail.Message) error {
	if s.mailer == nil {
		return nil
	}
	if err := s.mailer.Send(ctx, msg); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		return fmt.Errorf("user token service: send email: %w", err)
	}
	return nil
}

func (s *UserTokenService) link(path, token string) string {
	if s.baseURL == "" {
		return token
	}
	return s.baseURL + path + "?token=" + url.QueryEscape(token)
}
