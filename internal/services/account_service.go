package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/mfa"
	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/logger"
)

var (
	errAccountLocked   = apperrors.New("ACCOUNT_LOCKED", "Account temporarily locked after too many failed attempts.", http.StatusForbidden)
	errAccountDisabled = apperrors.New("ACCOUNT_DISABLED", "This account has been disabled.", http.StatusForbidden)
	errInvalidToken    = apperrors.NewValidation("Invalid or expired token.", apperrors.Details{"token": {"Invalid or expired token."}})
)

// RegisterInput is the self-service signup payload.
type RegisterInput struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=150"`
	LastName  string `json:"last_name" validate:"required,max=150"`
	Phone     string `json:"phone" validate:"omitempty,max=20"`
}

// LoginInput is the credential payload. MFACode is a TOTP code or a backup code.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

// UpdateProfileInput patches the caller's own profile.
type UpdateProfileInput struct {
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
}

// ChangePasswordInput replaces the password of a signed-in user.
type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
}

// ResetPasswordInput redeems a password reset token.
type ResetPasswordInput struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// DisableMFAInput proves both knowledge factors before MFA is switched off.
type DisableMFAInput struct {
	Password string `json:"password" validate:"required"`
	Code     string `json:"code" validate:"required"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User         *models.User         `json:"user"`
	Tokens       auth.TokenPair       `json:"tokens"`
	Organization *models.Organization `json:"organization,omitempty"`
}

// OrganizationSummary is one entry of the caller's organization list.
type OrganizationSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	IsOwner bool   `json:"is_owner"`
	Role    string `json:"role,omitempty"`
}

// Profile is the "me" payload.
type Profile struct {
	User          *models.User          `json:"user"`
	Organizations []OrganizationSummary `json:"organizations"`
}

// AccountOption customises AccountService.
type AccountOption func(*AccountService)

// WithAccountClock injects a custom clock.
func WithAccountClock(clock func() time.Time) AccountOption {
	return func(s *AccountService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// AccountService implements registration, login and the self-service account flows.
type AccountService struct {
	db       *gorm.DB
	audit    *AuditService
	sessions *auth.SessionService
	local    *providers.LocalProvider
	totp     *mfa.TOTPService
	tokens   *UserTokenService
	now      func() time.Time
}

// NewAccountService wires the account flows.
func NewAccountService(db *gorm.DB, audit *AuditService, sessions *auth.SessionService, local *providers.LocalProvider, totp *mfa.TOTPService, tokens *UserTokenService, opts ...AccountOption) (*AccountService, error) {
	switch {
	case db == nil:
		return nil, errors.New("account service: db is required")
	case sessions == nil:
		return nil, errors.New("account service: session service is required")
	case local == nil:
		return nil, errors.New("account service: local provider is required")
	case totp == nil:
		return nil, errors.New("account service: totp service is required")
	case tokens == nil:
		return nil, errors.New("account service: token service is required")
	}
	svc := &AccountService{
		db:       db,
		audit:    audit,
		sessions: sessions,
		local:    local,
		totp:     totp,
		tokens:   tokens,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Register creates the user with a default organization it owns, issues an
// email verification token and signs the user in.
func (s *AccountService) Register(ctx context.Context, input RegisterInput, meta auth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var (
		user  *models.User
		org   *models.Organization
		token string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = createUser(tx, newUserInput{
			Email:     input.Email,
			FirstName: input.FirstName,
			LastName:  input.LastName,
			Phone:     input.Phone,
			Password:  input.Password,
		})
		if err != nil {
			return err
		}
		org, err = createOrganization(tx, user.ID, CreateOrganizationInput{Name: defaultOrganizationName(user)}, s.now())
		if err != nil {
			return err
		}
		token, err = s.tokens.Issue(tx, user.ID, models.TokenEmailVerification)
		return err
	})
	if err != nil {
		return nil, s.translate(err, "register")
	}

	if err := s.tokens.SendVerification(ctx, user, token); err != nil {
		logger.WithModule("accounts").Warn("failed to send verification email",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}

	pair, _, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, fmt.Errorf("account service: register: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		OrganizationID: stringPtr(org.ID),
		UserID:         stringPtr(user.ID),
		Email:          user.Email,
		Action:         "auth.register",
		Resource:       user.ID,
		Result:         AuditSuccess,
		IPAddress:      meta.IPAddress,
		UserAgent:      meta.UserAgent,
	})
	return &AuthResult{User: user, Tokens: pair, Organization: org}, nil
}

// CreateSuperuser provisions a verified platform operator without an
// organization. It backs the create-superuser command.
func (s *AccountService) CreateSuperuser(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = createUser(tx, newUserInput{
			Email:         input.Email,
			FirstName:     input.FirstName,
			LastName:      input.LastName,
			Phone:         input.Phone,
			Password:      input.Password,
			EmailVerified: true,
		})
		if err != nil {
			return err
		}
		user.IsSuperuser = true
		return tx.Model(user).Update("is_superuser", true).Error
	})
	if err != nil {
		return nil, s.translate(err, "create superuser")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(user.ID),
		Email:    user.Email,
		Action:   "auth.superuser.create",
		Resource: user.ID,
		Result:   AuditSuccess,
	})
	return user, nil
}

func defaultOrganizationName(user *models.User) string {
	name := strings.TrimSpace(user.FirstName)
	if name == "" {
		name = strings.SplitN(user.Email, "@", 2)[0]
	}
	return name + "'s Organization"
}

// Login checks the password and, for MFA enabled accounts, the second factor.
func (s *AccountService) Login(ctx context.Context, input LoginInput, meta auth.SessionMetadata) (*AuthResult, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}

	user, err := s.local.Authenticate(ctx, providers.AuthenticateInput{
		Email:     input.Email,
		Password:  input.Password,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
	if err != nil {
		s.auditLogin(ctx, input.Email, nil, AuditFailure, meta)
		switch {
		case errors.Is(err, providers.ErrInvalidCredentials):
			return nil, apperrors.ErrInvalidCredentials
		case errors.Is(err, providers.ErrAccountLocked):
			return nil, errAccountLocked
		case errors.Is(err, providers.ErrAccountDisabled):
			return nil, errAccountDisabled
		}
		return nil, fmt.Errorf("account service: login: %w", err)
	}

	if user.MFAEnabled {
		code := strings.TrimSpace(input.MFACode)
		if code == "" {
			return nil, apperrors.ErrMFARequired
		}
		ok, err := s.totp.Verify(ctx, user.ID, code)
		if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
			return nil, fmt.Errorf("account service: verify mfa: %w", err)
		}
		if !ok {
			s.auditLogin(ctx, user.Email, &user.ID, AuditDenied, meta)
			return nil, apperrors.ErrMFAInvalid
		}
	}

	pair, _, err := s.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, fmt.Errorf("account service: login: %w", err)
	}
	s.auditLogin(ctx, user.Email, &user.ID, AuditSuccess, meta)
	return &AuthResult{User: user, Tokens: pair}, nil
}

func (s *AccountService) auditLogin(ctx context.Context, email string, userID *string, result string, meta auth.SessionMetadata) {
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:    userID,
		Email:     email,
		Action:    "auth.login",
		Result:    result,
		IPAddress: meta.IPAddress,
		UserAgent: meta.UserAgent,
	})
}

// Refresh rotates a refresh token.
func (s *AccountService) Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error) {
	pair, _, err := s.sessions.RefreshSession(ensureContext(ctx), refreshToken)
	if err != nil {
		if isSessionError(err) {
			return auth.TokenPair{}, apperrors.ErrUnauthorized
		}
		return auth.TokenPair{}, fmt.Errorf("account service: refresh: %w", err)
	}
	return pair, nil
}

// Logout revokes the session behind the current access token.
func (s *AccountService) Logout(ctx context.Context, userID, sessionID string) error {
	err := s.sessions.RevokeSession(ensureContext(ctx), userID, sessionID)
	if err != nil && !isSessionError(err) {
		return fmt.Errorf("account service: logout: %w", err)
	}
	return nil
}

func isSessionError(err error) bool {
	return errors.Is(err, auth.ErrSessionNotFound) ||
		errors.Is(err, auth.ErrSessionExpired) ||
		errors.Is(err, auth.ErrSessionRevoked) ||
		errors.Is(err, auth.ErrSessionInvalidToken)
}

// Me returns the caller with the organizations they own or belong to.
func (s *AccountService) Me(ctx context.Context, userID string) (*Profile, error) {
	ctx = ensureContext(ctx)
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	var owned []models.Organization
	if err := s.db.WithContext(ctx).Where("owner_id = ?", user.ID).Order("name ASC").Find(&owned).Error; err != nil {
		return nil, fmt.Errorf("account service: load organizations: %w", err)
	}
	var memberships []models.Membership
	if err := s.db.WithContext(ctx).
		Preload("Role").
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("account service: load memberships: %w", err)
	}

	summaries := make([]OrganizationSummary, 0, len(owned)+len(memberships))
	seen := make(map[string]struct{}, len(owned))
	for _, org := range owned {
		seen[org.ID] = struct{}{}
		summaries = append(summaries, OrganizationSummary{ID: org.ID, Name: org.Name, Slug: org.Slug, IsOwner: true, Role: models.RoleAdmin})
	}

	var orgIDs []string
	roles := make(map[string]string, len(memberships))
	for _, m := range memberships {
		if _, ok := seen[m.OrganizationID]; ok {
			continue
		}
		orgIDs = append(orgIDs, m.OrganizationID)
		if m.Role != nil {
			roles[m.OrganizationID] = m.Role.Name
		}
	}
	if len(orgIDs) > 0 {
		var joined []models.Organization
		if err := s.db.WithContext(ctx).Where("id IN ?", orgIDs).Order("name ASC").Find(&joined).Error; err != nil {
			return nil, fmt.Errorf("account service: load organizations: %w", err)
		}
		for _, org := range joined {
			summaries = append(summaries, OrganizationSummary{ID: org.ID, Name: org.Name, Slug: org.Slug, Role: roles[org.ID]})
		}
	}
	return &Profile{User: user, Organizations: summaries}, nil
}

// UpdateProfile patches the caller's own profile fields.
func (s *AccountService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*models.User, error) {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if input.Phone != nil {
		updates["phone"] = strings.TrimSpace(*input.Phone)
	}
	if input.AvatarURL != nil {
		updates["avatar_url"] = strings.TrimSpace(*input.AvatarURL)
	}
	if len(updates) == 0 {
		return user, nil
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("account service: update profile: %w", err)
	}
	return s.user(ctx, userID)
}

// ChangePassword replaces the password after checking the current one.
func (s *AccountService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return err
	}
	if err := s.local.ChangePassword(ctx, userID, input.CurrentPassword, input.NewPassword); err != nil {
		if errors.Is(err, providers.ErrInvalidCredentials) {
			return apperrors.FieldError("current_password", "Current password is incorrect.")
		}
		return fmt.Errorf("account service: change password: %w", err)
	}
	recordAudit(s.audit, ctx, AuditEntry{UserID: stringPtr(userID), Action: "auth.password.change", Resource: userID, Result: AuditSuccess})
	return nil
}

// VerifyEmail redeems an email verification token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.tokens.Consume(tx, token, models.TokenEmailVerification)
		if err != nil {
			return err
		}
		userID = record.UserID
		return tx.Model(&models.User{}).Where("id = ?", userID).Update("email_verified", true).Error
	})
	if err != nil {
		return nil, s.translate(err, "verify email")
	}
	return s.user(ctx, userID)
}

// ResendVerification issues and mails a fresh verification token.
func (s *AccountService) ResendVerification(ctx context.Context, userID string) error {
	ctx = ensureContext(ctx)
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return apperrors.NewValidation("Email address is already verified.", nil)
	}
	token, err := s.tokens.Issue(s.db.WithContext(ctx), user.ID, models.TokenEmailVerification)
	if err != nil {
		return fmt.Errorf("account service: resend verification: %w", err)
	}
	return s.tokens.SendVerification(ctx, user, token)
}

// ForgotPassword mails a reset link when the address belongs to an active
// account. It reports success either way so callers cannot enumerate accounts.
func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	user, err := findUserByEmail(s.db.WithContext(ctx), email)
	if err != nil {
		return fmt.Errorf("account service: forgot password: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil
	}

	token, err := s.tokens.Issue(s.db.WithContext(ctx), user.ID, models.TokenPasswordReset)
	if err != nil {
		return fmt.Errorf("account service: forgot password: %w", err)
	}
	if err := s.tokens.SendPasswordReset(ctx, user, token); err != nil {
		logger.WithModule("accounts").Warn("failed to send password reset email",
			zap.String("user_id", user.ID),
			zap.Error(err),
		)
	}
	return nil
}

// ResetPassword redeems a reset token, sets the new password and revokes
// every session of the user.
func (s *AccountService) ResetPassword(ctx context.Context, input ResetPasswordInput) error {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return err
	}
	var userID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record, err := s.tokens.Consume(tx, input.Token, models.TokenPasswordReset)
		if err != nil {
			return err
		}
		userID = record.UserID
		return s.local.SetPassword(tx, userID, input.NewPassword)
	})
	if err != nil {
		return s.translate(err, "reset password")
	}

	if err := s.sessions.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("account service: reset password: %w", err)
	}
	recordAudit(s.audit, ctx, AuditEntry{UserID: stringPtr(userID), Action: "auth.password.reset", Resource: userID, Result: AuditSuccess})
	return nil
}

// SetupMFA starts an enrollment. MFA stays disabled until VerifyMFA succeeds.
func (s *AccountService) SetupMFA(ctx context.Context, userID string) (*mfa.Enrollment, error) {
	ctx = ensureContext(ctx)
	user, err := s.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFAEnabled {
		return nil, apperrors.NewValidation("Multi-factor authentication is already enabled.", nil)
	}
	enrollment, err := s.totp.Setup(ctx, user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("account service: setup mfa: %w", err)
	}
	return enrollment, nil
}

// VerifyMFA confirms the pending enrollment with a code and enables MFA.
func (s *AccountService) VerifyMFA(ctx context.Context, userID, code string) error {
	ctx = ensureContext(ctx)
	ok, err := s.totp.Confirm(ctx, userID, code)
	if errors.Is(err, mfa.ErrNotEnrolled) {
		return apperrors.NewValidation("Multi-factor authentication has not been set up.", nil)
	}
	if err != nil {
		return fmt.Errorf("account service: verify mfa: %w", err)
	}
	if !ok {
		return apperrors.ErrMFAInvalid
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("mfa_enabled", true).Error; err != nil {
		return fmt.Errorf("account service: enable mfa: %w", err)
	}
	recordAudit(s.audit, ctx, AuditEntry{UserID: stringPtr(userID), Action: "auth.mfa.enable", Resource: userID, Result: AuditSuccess})
	return nil
}

// DisableMFA turns MFA off after checking the password and a current code.
func (s *AccountService) DisableMFA(ctx context.Context, userID string, input DisableMFAInput) error {
	ctx = ensureContext(ctx)
	if err := validateInput(input); err != nil {
		return err
	}
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFAEnabled {
		return apperrors.NewValidation("Multi-factor authentication is not enabled.", nil)
	}
	if user.Password == "" || !crypto.VerifyPassword(user.Password, input.Password) {
		return apperrors.FieldError("password", "Password is incorrect.")
	}
	ok, err := s.totp.Verify(ctx, user.ID, input.Code)
	if err != nil && !errors.Is(err, mfa.ErrNotEnrolled) {
		return fmt.Errorf("account service: disable mfa: %w", err)
	}
	if !ok {
		return apperrors.ErrMFAInvalid
	}

	if err := s.totp.Disable(ctx, user.ID); err != nil {
		return fmt.Errorf("account service: disable mfa: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("mfa_enabled", false).Error; err != nil {
		return fmt.Errorf("account service: disable mfa: %w", err)
	}
	recordAudit(s.audit, ctx, AuditEntry{UserID: stringPtr(userID), Action: "auth.mfa.disable", Resource: userID, Result: AuditSuccess})
	return nil
}

// ProvisionExternalUser creates the account of a first OAuth login together
// with its default organization.
func (s *AccountService) ProvisionExternalUser(ctx context.Context, identity providers.Identity) (*models.User, error) {
	ctx = ensureContext(ctx)

	first, last := identity.FirstName, identity.LastName
	if first == "" && last == "" && identity.DisplayName != "" {
		parts := strings.SplitN(strings.TrimSpace(identity.DisplayName), " ", 2)
		first = parts[0]
		if len(parts) > 1 {
			last = parts[1]
		}
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = createUser(tx, newUserInput{
			Email:         identity.Email,
			FirstName:     first,
			LastName:      last,
			EmailVerified: identity.EmailVerified,
			AuthProvider:  identity.Provider,
			AuthSubject:   identity.Subject,
		})
		if err != nil {
			return err
		}
		if identity.AvatarURL != "" {
			if err := tx.Model(user).Update("avatar_url", identity.AvatarURL).Error; err != nil {
				return err
			}
			user.AvatarURL = identity.AvatarURL
		}
		_, err = createOrganization(tx, user.ID, CreateOrganizationInput{Name: defaultOrganizationName(user)}, s.now())
		return err
	})
	if err != nil {
		return nil, s.translate(err, "provision user")
	}

	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   stringPtr(user.ID),
		Email:    user.Email,
		Action:   "auth.register",
		Resource: user.ID,
		Result:   AuditSuccess,
		Metadata: map[string]any{"provider": identity.Provider},
	})
	return user, nil
}

func (s *AccountService) user(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(userID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("account service: load user: %w", err)
	}
	return &user, nil
}

func (s *AccountService) translate(err error, verb string) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenExpired) || errors.Is(err, ErrTokenUsed) {
		return errInvalidToken
	}
	if isUniqueConstraintError(err) {
		return uniqueViolation("email", "A user with this email already exists.")
	}
	return fmt.Errorf("account service: %s: %w", verb, err)
}
