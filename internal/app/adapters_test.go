package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/providers"
)

func TestAuthAdaptersPassValuesThrough(t *testing.T) {
	cfg := AuthConfig{
		JWT:     JWTSettings{Secret: "secret", Issuer: "issuer", TTL: 30 * time.Minute},
		Session: SessionSettings{RefreshTTL: 10 * time.Hour, RefreshLength: 32},
		Local:   LocalAuthSettings{LockoutThreshold: 4, LockoutDuration: 10 * time.Minute},
	}

	require.Equal(t, auth.JWTConfig{Secret: "secret", Issuer: "issuer", AccessTokenTTL: 30 * time.Minute}, cfg.JWTServiceConfig())
	require.Equal(t, auth.SessionConfig{RefreshTokenTTL: 10 * time.Hour, RefreshLength: 32}, cfg.SessionServiceConfig())
	require.Equal(t, providers.LocalConfig{LockoutThreshold: 4, LockoutDuration: 10 * time.Minute}, cfg.LocalProviderConfig())
}

func TestAuthAdaptersFillZeroValues(t *testing.T) {
	var cfg AuthConfig

	require.Equal(t, auth.DefaultAccessTokenTTL, cfg.JWTServiceConfig().AccessTokenTTL)
	require.Equal(t, auth.SessionConfig{RefreshTokenTTL: auth.DefaultRefreshTokenTTL, RefreshLength: defaultRefreshLength}, cfg.SessionServiceConfig())
	require.Equal(t, providers.LocalConfig{LockoutThreshold: defaultLockoutThreshold, LockoutDuration: defaultLockoutDuration}, cfg.LocalProviderConfig())
}

func TestOIDCProviderConfigsSkipDisabled(t *testing.T) {
	cfg := AuthConfig{OAuth: OAuthSettings{
		Google:    OAuthProviderConfig{Enabled: true, Issuer: " https://accounts.google.com ", ClientID: "id", ClientSecret: "secret", RedirectURL: "https://cb"},
		Microsoft: OAuthProviderConfig{ClientID: "ms"},
	}}

	configs := cfg.OIDCProviderConfigs()
	require.Len(t, configs, 1)
	require.Equal(t, "google", configs[0].Name)
	require.Equal(t, "https://accounts.google.com", configs[0].Issuer)
	require.Equal(t, []string{"openid", "email", "profile"}, configs[0].Scopes)
	require.Equal(t, 10, configs[0].Order)

	cfg.OAuth.Microsoft.Enabled = true
	configs = cfg.OIDCProviderConfigs()
	require.Len(t, configs, 2)
	require.Equal(t, "microsoft", configs[1].Name)
	require.Equal(t, 20, configs[1].Order)
}

func TestSMTPSettingsTrimAddresses(t *testing.T) {
	settings := EmailConfig{SMTP: SMTPConfig{
		Enabled: true,
		Host:    " smtp.example.com ",
		Port:    2525,
		From:    " no-reply@example.com",
		Timeout: 10 * time.Second,
	}}.SMTPSettings()

	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.Equal(t, 10*time.Second, settings.Timeout)
}

func TestRedisClientConfigTrimsAddress(t *testing.T) {
	got := CacheConfig{Redis: RedisCacheConfig{Address: " cache:6379 ", DB: 3, TLS: true}}.RedisClientConfig()
	require.Equal(t, "cache:6379", got.Address)
	require.Equal(t, 3, got.DB)
	require.True(t, got.TLS)
}

func TestDatabaseConnection(t *testing.T) {
	cfg := DatabaseConfig{Driver: "PostgreSQL", Postgres: DBAuthConfig{
		Host:     " db.internal ",
		Port:     5433,
		Database: "crm",
		Username: "crm",
		Password: "secret",
		Options:  "sslmode=disable&timezone=UTC",
	}}

	conn := cfg.Connection()
	require.Equal(t, "postgres", conn.Driver)
	require.Equal(t, "db.internal", conn.Host)
	require.Equal(t, 5433, conn.Port)
	require.Equal(t, map[string]string{"sslmode": "disable", "timezone": "UTC"}, conn.Options)

	require.Equal(t, "sqlite", DatabaseConfig{}.Connection().Driver)
	require.Equal(t, "oracle", DatabaseConfig{Driver: "Oracle"}.Connection().Driver)

	require.Nil(t, parseOptions("  "))
	require.Nil(t, parseOptions("broken"))
	require.Equal(t, map[string]string{"charset": "utf8mb4"}, parseOptions("charset=utf8mb4 broken"))
}
