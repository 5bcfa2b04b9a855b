package security

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/app"
	testutil "github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
)

const strongSecret = "0123456789abcdef0123456789abcdef0123456789abcdef"

func TestAuditorRun(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate(), testutil.WithRows(&models.User{
		Email:       "ops@example.com",
		IsSuperuser: true,
		IsActive:    true,
	}))

	cfg := &app.Config{
		Server:   app.ServerConfig{CORS: app.CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}},
		Security: app.SecurityConfig{EncryptionKey: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: strongSecret, Issuer: "crmhub", TTL: time.Hour},
			Session: app.SessionSettings{RefreshTTL: 7 * 24 * time.Hour, RefreshLength: 48},
		},
	}

	auditor := NewAuditor(db, cfg)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	auditor.WithClock(func() time.Time { return fixed })

	result := auditor.Run(context.Background())
	require.Equal(t, fixed, result.CheckedAt)
	require.Len(t, result.Checks, 5)
	require.Equal(t, 5, result.Summary[string(StatusPass)])
}

func TestAuditorFlagsWeakConfiguration(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	cfg := &app.Config{
		Server: app.ServerConfig{CORS: app.CORSConfig{AllowedOrigins: []string{"*"}}},
		Auth: app.AuthConfig{
			JWT:     app.JWTSettings{Secret: "short"},
			Session: app.SessionSettings{RefreshTTL: 90 * 24 * time.Hour},
		},
	}

	result := NewAuditor(db, cfg).Run(context.Background())

	require.Equal(t, StatusFail, result.Find(CheckSuperuser).Status)
	require.Equal(t, StatusFail, result.Find(CheckJWTSecret).Status)
	require.Equal(t, StatusFail, result.Find(CheckEncryptionKey).Status)
	require.Equal(t, StatusWarn, result.Find(CheckRefreshTTL).Status)
	require.Equal(t, StatusWarn, result.Find(CheckCORS).Status)
	require.Nil(t, result.Find("unknown"))
}

func TestAuditorWithoutDependencies(t *testing.T) {
	result := NewAuditor(nil, nil).Run(context.Background())
	require.Equal(t, len(result.Checks), result.Summary[string(StatusWarn)])
}

func TestPassphraseEncryptionKeyWarns(t *testing.T) {
	cfg := &app.Config{Security: app.SecurityConfig{EncryptionKey: "correct horse battery staple", KeySalt: "0123456789abcdef0123456789abcdef"}}

	check := encryptionKeyCheck(cfg)
	require.Equal(t, StatusWarn, check.Status, check.Message)
	require.NotEmpty(t, check.Remediation)
}

func TestJWTSecretBands(t *testing.T) {
	cases := map[int]CheckStatus{0: StatusFail, 16: StatusFail, 40: StatusWarn, 64: StatusPass}
	for n, want := range cases {
		cfg := &app.Config{}
		cfg.Auth.JWT.Secret = strings.Repeat("x", n)
		require.Equal(t, want, jwtSecretCheck(cfg).Status, "length %d", n)
	}
}
