package auth

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

const (
	// DefaultRefreshTokenTTL applies when SessionConfig leaves it unset.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultRefreshBytes    = 48
)

type SessionConfig struct {
	RefreshTokenTTL time.Duration
	RefreshLength   int
	Clock           func() time.Time
}

// SessionMetadata describes the client that logged in.
type SessionMetadata struct {
	IPAddress string
	UserAgent string
}

// TokenPair is the body of every successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

var (
	ErrSessionNotFound     = errors.New("session: not found")
	ErrSessionRevoked      = errors.New("session: revoked")
	ErrSessionExpired      = errors.New("session: expired")
	ErrSessionInvalidToken = errors.New("session: invalid token")
)

// SessionService opens, rotates and revokes sessions. Only the digest of a
// refresh token is stored; the raw value is returned once in a TokenPair.
type SessionService struct {
	db         *gorm.DB
	jwt        *JWTService
	refreshTTL time.Duration
	tokenBytes int
	now        func() time.Time
}

func NewSessionService(db *gorm.DB, jwtService *JWTService, cfg SessionConfig) (*SessionService, error) {
	switch {
	case db == nil:
		return nil, errors.New("session service: db is required")
	case jwtService == nil:
		return nil, errors.New("session service: jwt service is required")
	}
	s := &SessionService{
		db:         db,
		jwt:        jwtService,
		refreshTTL: cfg.RefreshTokenTTL,
		tokenBytes: cfg.RefreshLength,
		now:        cfg.Clock,
	}
	if s.refreshTTL <= 0 {
		s.refreshTTL = DefaultRefreshTokenTTL
	}
	if s.tokenBytes <= 0 {
		s.tokenBytes = defaultRefreshBytes
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *SessionService) sessions(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Session{})
}

// newRefreshToken returns a raw token and the digest stored for it.
func (s *SessionService) newRefreshToken() (string, string, error) {
	raw, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return "", "", fmt.Errorf("session service: generate refresh token: %w", err)
	}
	return raw, crypto.HashToken(raw), nil
}

// CreateSession opens a session for user and returns its first token pair.
func (s *SessionService) CreateSession(ctx context.Context, user *models.User, meta SessionMetadata) (TokenPair, *models.Session, error) {
	if user == nil || strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, nil, errors.New("session service: user is required")
	}
	raw, digest, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}

	now := s.now()
	session := &models.Session{
		UserID:      user.ID,
		TokenDigest: digest,
		IPAddress:   strings.TrimSpace(meta.IPAddress),
		UserAgent:   strings.TrimSpace(meta.UserAgent),
		ExpiresAt:   now.Add(s.refreshTTL),
		LastUsedAt:  now,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: create session: %w", err)
	}
	metrics.ActiveSessions.Inc()

	pair, err := s.tokens(user, session.ID, raw)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, session, nil
}

// RefreshSession exchanges a refresh token for a new pair. The presented
// token stops working; replaying it yields ErrSessionNotFound.
func (s *SessionService) RefreshSession(ctx context.Context, refreshToken string) (TokenPair, *models.Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return TokenPair{}, nil, ErrSessionInvalidToken
	}

	var session models.Session
	err := s.db.WithContext(ctx).Preload("User").
		Take(&session, "token_digest = ?", crypto.HashToken(refreshToken)).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return TokenPair{}, nil, ErrSessionNotFound
	case err != nil:
		return TokenPair{}, nil, fmt.Errorf("session service: find session: %w", err)
	}

	now := s.now()
	switch {
	case session.RevokedAt != nil, session.User == nil, !session.User.IsActive:
		return TokenPair{}, nil, ErrSessionRevoked
	case !now.Before(session.ExpiresAt):
		return TokenPair{}, nil, ErrSessionExpired
	}

	raw, digest, err := s.newRefreshToken()
	if err != nil {
		return TokenPair{}, nil, err
	}
	expires := now.Add(s.refreshTTL)

	// Matching on the old digest makes concurrent refreshes race for one row.
	res := s.sessions(ctx).
		Where("id = ? AND token_digest = ?", session.ID, session.TokenDigest).
		Updates(map[string]any{"token_digest": digest, "expires_at": expires, "last_used_at": now})
	if res.Error != nil {
		return TokenPair{}, nil, fmt.Errorf("session service: rotate session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return TokenPair{}, nil, ErrSessionNotFound
	}
	session.TokenDigest, session.ExpiresAt, session.LastUsedAt = digest, expires, now

	pair, err := s.tokens(session.User, session.ID, raw)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, &session, nil
}

// RevokeSession ends one of userID's sessions (logout).
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return ErrSessionInvalidToken
	}
	n, err := s.revoke(ctx, "id = ? AND user_id = ?", sessionID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// RevokeUserSessions ends every open session of userID, for password
// changes and deactivation.
func (s *SessionService) RevokeUserSessions(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrSessionInvalidToken
	}
	_, err := s.revoke(ctx, "user_id = ?", userID)
	return err
}

func (s *SessionService) revoke(ctx context.Context, where string, args ...any) (int64, error) {
	res := s.sessions(ctx).
		Where(where, args...).
		Where("revoked_at IS NULL").
		Update("revoked_at", s.now())
	if res.Error != nil {
		return 0, fmt.Errorf("session service: revoke: %w", res.Error)
	}
	metrics.ActiveSessions.Sub(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

// IsActive reports whether an access token's session is still live. An
// unknown id is not an error.
func (s *SessionService) IsActive(ctx context.Context, sessionID string) (bool, error) {
	var session models.Session
	err := s.db.WithContext(ctx).
		Select("id", "expires_at", "revoked_at").
		Take(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("session service: load session: %w", err)
	}
	return session.Active(s.now()), nil
}

// CleanupExpired deletes expired and revoked sessions and returns how many
// rows went.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	now := s.now()
	var removed, lapsed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Revoked rows already left the gauge; only lapsed open ones count.
		if err := tx.Model(&models.Session{}).
			Where("expires_at < ? AND revoked_at IS NULL", now).
			Count(&lapsed).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at < ? OR revoked_at IS NOT NULL", now).Delete(&models.Session{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("session service: cleanup: %w", err)
	}
	metrics.ActiveSessions.Sub(float64(lapsed))
	return removed, nil
}

func (s *SessionService) tokens(user *models.User, sessionID, refresh string) (TokenPair, error) {
	access, err := s.jwt.GenerateAccessToken(AccessTokenInput{
		UserID:    user.ID,
		SessionID: sessionID,
		Email:     user.Email,
		Superuser: user.IsSuperuser,
	})
	if err != nil {
		return TokenPair{}, fmt.Errorf("session service: generate access token: %w", err)
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.jwt.AccessTokenTTL() / time.Second),
	}, nil
}
