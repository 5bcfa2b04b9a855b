package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestNewJWTServiceRequiresSecret(t *testing.T) {
	_, err := NewJWTService(JWTConfig{})
	require.EqualError(t, err, "jwt: secret must be provided")
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	current := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }

	svc, err := NewJWTService(JWTConfig{
		Secret:         "super-secret",
		Issuer:         "crmhub",
		AccessTokenTTL: time.Hour,
		Clock:          now,
	})
	require.NoError(t, err)
	require.Equal(t, time.Hour, svc.AccessTokenTTL())

	token, err := svc.GenerateAccessToken(AccessTokenInput{
		UserID:    "user-123",
		SessionID: "session-456",
		Email:     "owner@example.com",
		Superuser: true,
		Audience:  []string{"api"},
	})
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, "session-456", claims.SessionID)
	require.Equal(t, "session-456", claims.ID)
	require.Equal(t, "owner@example.com", claims.Email)
	require.True(t, claims.Superuser)
	require.Equal(t, "crmhub", claims.Issuer)
	require.Equal(t, jwt.ClaimStrings{"api"}, claims.Audience)
	require.True(t, claims.ExpiresAt.Time.Equal(current.Add(time.Hour)))

	current = current.Add(2 * time.Hour)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateAccessTokenRejectsForeignTokens(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret-a", Issuer: "crmhub"})
	require.NoError(t, err)

	other, err := NewJWTService(JWTConfig{Secret: "secret-b", Issuer: "crmhub"})
	require.NoError(t, err)
	foreign, err := other.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(foreign)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTService(JWTConfig{Secret: "secret-a", Issuer: "someone-else"})
	require.NoError(t, err)
	token, err := wrongIssuer.GenerateAccessToken(AccessTokenInput{UserID: "u"})
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"uid": "u"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateAccessToken("")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.GenerateAccessToken(AccessTokenInput{})
	require.Error(t, err)
}

func TestValidateAccessTokenChecksClaims(t *testing.T) {
	svc, err := NewJWTService(JWTConfig{Secret: "secret-a"})
	require.NoError(t, err)

	sign := func(claims jwt.Claims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret-a"))
		require.NoError(t, err)
		return token
	}
	expires := jwt.NewNumericDate(time.Now().Add(time.Minute))

	_, err = svc.ValidateAccessToken(sign(jwt.MapClaims{"uid": "u"}))
	require.ErrorIs(t, err, ErrInvalidToken, "tokens without exp are rejected")

	_, err = svc.ValidateAccessToken(sign(Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expires}}))
	require.ErrorContains(t, err, "missing user id claim")

	_, err = svc.ValidateAccessToken(sign(Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{Subject: "v", ExpiresAt: expires}}))
	require.ErrorContains(t, err, "subject does not match")

	claims, err := svc.ValidateAccessToken(sign(Claims{UserID: "u", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expires}}))
	require.NoError(t, err)
	require.Equal(t, "u", claims.UserID)
	require.Equal(t, DefaultAccessTokenTTL, svc.AccessTokenTTL())
}
