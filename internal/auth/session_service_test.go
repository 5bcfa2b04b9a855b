package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/crypto"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func TestCreateSessionGeneratesTokens(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "create@example.com")

	tokens, session, err := svc.CreateSession(context.Background(), &user, SessionMetadata{
		IPAddress: "10.0.0.1 ",
		UserAgent: "unit-test",
	})
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, "Bearer", tokens.TokenType)
	require.EqualValues(t, 900, tokens.ExpiresIn)
	require.Equal(t, "10.0.0.1", session.IPAddress)

	var reloaded models.Session
	require.NoError(t, db.Take(&reloaded, "id = ?", session.ID).Error)
	require.Equal(t, crypto.HashToken(tokens.RefreshToken), reloaded.TokenDigest)
	require.NotEqual(t, tokens.RefreshToken, reloaded.TokenDigest)
	require.True(t, reloaded.ExpiresAt.After(clock.Now()))

	claims, err := svc.jwt.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, session.ID, claims.SessionID)
	require.Equal(t, "create@example.com", claims.Email)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "refresh@example.com")
	ctx := context.Background()

	tokens, session, err := svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)

	rotated, updated, err := svc.RefreshSession(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
	require.Equal(t, session.ID, updated.ID)
	require.True(t, updated.LastUsedAt.Equal(clock.Now()))

	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, _, err = svc.RefreshSession(ctx, "  ")
	require.ErrorIs(t, err, ErrSessionInvalidToken)
}

func TestRefreshSessionRejectsExpiredAndRevoked(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "expired@example.com")
	ctx := context.Background()

	tokens, _, err := svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)
	clock.Advance(DefaultRefreshTokenTTL + time.Minute)
	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)

	tokens, session, err := svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(ctx, user.ID, session.ID))
	_, _, err = svc.RefreshSession(ctx, tokens.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)

	active, err := svc.IsActive(ctx, session.ID)
	require.NoError(t, err)
	require.False(t, active)

	require.ErrorIs(t, svc.RevokeSession(ctx, user.ID, session.ID), ErrSessionNotFound)
}

func TestRevokeUserSessionsAndCleanup(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "cleanup@example.com")
	ctx := context.Background()

	_, first, err := svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)
	_, second, err := svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)

	active, err := svc.IsActive(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, active)

	require.NoError(t, svc.RevokeUserSessions(ctx, user.ID))

	for _, id := range []string{first.ID, second.ID} {
		active, err := svc.IsActive(ctx, id)
		require.NoError(t, err)
		require.False(t, active)
	}

	_, _, err = svc.CreateSession(ctx, &user, SessionMetadata{})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	removed, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.Session{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *fakeClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fakeClock{current: time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)}

	jwtSvc, err := NewJWTService(JWTConfig{Secret: "session-secret", Issuer: "crmhub", Clock: clock.Now})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwtSvc, SessionConfig{Clock: clock.Now})
	require.NoError(t, err)
	return db, svc, clock
}

func createTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, IsActive: true}
	require.NoError(t, db.Create(&user).Error)
	return user
}
