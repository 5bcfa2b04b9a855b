package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/cache"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/metrics"
)

var (
	// ErrSSOProviderMismatch is returned when the callback provider differs from the one in state.
	ErrSSOProviderMismatch = errors.New("sso: provider mismatch")
	// ErrSSOEmailRequired is returned when the identity carries no email address.
	ErrSSOEmailRequired = errors.New("sso: identity email is required")
	// ErrSSOEmailUnverified is returned when linking an existing account to an unverified identity.
	ErrSSOEmailUnverified = errors.New("sso: identity email is not verified")
	// ErrSSOUserDisabled is returned when the resolved account has been deactivated.
	ErrSSOUserDisabled = errors.New("sso: user disabled")
	// ErrSSOStateReused is returned when a callback replays a state already redeemed.
	ErrSSOStateReused = errors.New("sso: state already used")
)

// UserProvisioner creates the account for a first external login. Implementations
// are expected to create the user together with its default organization.
type UserProvisioner interface {
	ProvisionExternalUser(ctx context.Context, identity providers.Identity) (*models.User, error)
}

// SSOConfig controls optional behaviour of the SSO manager.
type SSOConfig struct {
	Clock func() time.Time
	// Replay, when set, makes each login state redeemable once.
	Replay cache.Store
}

// SSOManager drives OAuth login: redirect construction, callback validation and
// user resolution, finishing with a regular session.
type SSOManager struct {
	db          *gorm.DB
	registry    *providers.Registry
	state       *StateCodec
	sessions    *SessionService
	provisioner UserProvisioner
	replay      cache.Store
	clock       func() time.Time
}

// LoginResult is returned by a completed OAuth callback.
type LoginResult struct {
	Tokens    TokenPair
	User      *models.User
	Session   *models.Session
	Created   bool
	ReturnURL string
}

// NewSSOManager wires the collaborators of the OAuth login flow.
func NewSSOManager(db *gorm.DB, registry *providers.Registry, state *StateCodec, sessions *SessionService, provisioner UserProvisioner, cfg SSOConfig) (*SSOManager, error) {
	if db == nil {
		return nil, errors.New("sso manager: db is required")
	}
	if registry == nil {
		return nil, errors.New("sso manager: provider registry is required")
	}
	if state == nil {
		return nil, errors.New("sso manager: state codec is required")
	}
	if sessions == nil {
		return nil, errors.New("sso manager: session service is required")
	}
	if provisioner == nil {
		return nil, errors.New("sso manager: user provisioner is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &SSOManager{
		db:          db,
		registry:    registry,
		state:       state,
		sessions:    sessions,
		provisioner: provisioner,
		replay:      cfg.Replay,
		clock:       clock,
	}, nil
}

// Providers lists enabled providers for the login screen.
func (m *SSOManager) Providers() []providers.Metadata {
	return m.registry.Metadata()
}

// Begin returns the provider authorization URL for the login redirect.
func (m *SSOManager) Begin(ctx context.Context, providerName, returnURL string) (string, error) {
	provider, err := m.registry.Get(providerName)
	if err != nil {
		return "", err
	}

	secrets, err := newLoginSecrets()
	if err != nil {
		return "", err
	}

	state, err := m.state.Encode(StatePayload{
		Provider:  provider.Metadata().Name,
		ReturnURL: sanitiseReturnURL(returnURL),
		Nonce:     secrets.Nonce,
		PKCE:      secrets.Verifier,
	})
	if err != nil {
		return "", err
	}

	resp, err := provider.Begin(ctx, providers.BeginAuthRequest{
		State:         state,
		Nonce:         secrets.Nonce,
		PKCEChallenge: secrets.Challenge,
	})
	if err != nil {
		return "", fmt.Errorf("sso manager: begin %s: %w", providerName, err)
	}
	return resp.RedirectURL, nil
}

// CallbackInput carries the query parameters of the provider callback.
type CallbackInput struct {
	State string
	Code  string
	Error string
}

// Complete validates the callback, resolves the local account and opens a session.
func (m *SSOManager) Complete(ctx context.Context, providerName string, input CallbackInput, meta SessionMetadata) (*LoginResult, error) {
	result, err := m.complete(ctx, providerName, input, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return result, nil
}

func (m *SSOManager) complete(ctx context.Context, providerName string, input CallbackInput, meta SessionMetadata) (*LoginResult, error) {
	payload, err := m.state.Decode(input.State)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(payload.Provider, strings.TrimSpace(providerName)) {
		return nil, ErrSSOProviderMismatch
	}
	if err := m.redeem(ctx, payload); err != nil {
		return nil, err
	}

	provider, err := m.registry.Get(payload.Provider)
	if err != nil {
		return nil, err
	}

	identity, err := provider.Callback(ctx, providers.CallbackRequest{
		Code:          input.Code,
		Error:         input.Error,
		PKCEVerifier:  payload.PKCE,
		ExpectedNonce: payload.Nonce,
	})
	if err != nil {
		return nil, err
	}

	user, created, err := m.resolveUser(ctx, *identity)
	if err != nil {
		return nil, err
	}

	now := m.clock().UTC()
	if err := m.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"last_login_at": now,
		"last_login_ip": strings.TrimSpace(meta.IPAddress),
	}).Error; err != nil {
		return nil, fmt.Errorf("sso manager: update last login: %w", err)
	}

	tokens, session, err := m.sessions.CreateSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Tokens:    tokens,
		User:      user,
		Session:   session,
		Created:   created,
		ReturnURL: payload.ReturnURL,
	}, nil
}

// redeem claims the state's nonce until the state itself expires.
func (m *SSOManager) redeem(ctx context.Context, payload StatePayload) error {
	if m.replay == nil {
		return nil
	}
	ttl := payload.ExpiresAt.Sub(m.clock())
	if ttl <= 0 {
		return ErrStateExpired
	}
	first, err := m.replay.Claim(ctx, "sso:state:"+payload.Nonce, ttl)
	if err != nil {
		return fmt.Errorf("sso manager: claim state: %w", err)
	}
	if !first {
		return ErrSSOStateReused
	}
	return nil
}

// resolveUser finds the account bound to the identity, links an existing
// account by email, or provisions a new one.
func (m *SSOManager) resolveUser(ctx context.Context, identity providers.Identity) (*models.User, bool, error) {
	identity.Email = strings.ToLower(strings.TrimSpace(identity.Email))
	if identity.Email == "" {
		return nil, false, ErrSSOEmailRequired
	}

	db := m.db.WithContext(ctx)

	var user models.User
	err := db.Where("auth_provider = ? AND auth_subject = ?", identity.Provider, identity.Subject).Take(&user).Error
	if err == nil {
		if !user.IsActive {
			return nil, false, ErrSSOUserDisabled
		}
		return &user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("sso manager: find user by subject: %w", err)
	}

	err = db.Where("LOWER(email) = ?", identity.Email).Take(&user).Error
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, false, ErrSSOUserDisabled
		}
		if !identity.EmailVerified {
			return nil, false, ErrSSOEmailUnverified
		}
		updates := map[string]any{
			"auth_provider":  identity.Provider,
			"auth_subject":   identity.Subject,
			"email_verified": true,
		}
		if user.AvatarURL == "" && identity.AvatarURL != "" {
			updates["avatar_url"] = identity.AvatarURL
		}
		if err := db.Model(&user).Updates(updates).Error; err != nil {
			return nil, false, fmt.Errorf("sso manager: link identity: %w", err)
		}
		return &user, false, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		created, err := m.provisioner.ProvisionExternalUser(ctx, identity)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	default:
		return nil, false, fmt.Errorf("sso manager: find user by email: %w", err)
	}
}

// sanitiseReturnURL only accepts relative paths so the callback cannot be used
// as an open redirect.
func sanitiseReturnURL(value string) string {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "/") || strings.HasPrefix(value, "//") {
		return ""
	}
	return value
}
