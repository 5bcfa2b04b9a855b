package app

import (
	"strings"
	"time"

	"github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/auth/providers"
	"github.com/charlesng35/crmhub/internal/cache"
	"github.com/charlesng35/crmhub/internal/database"
	"github.com/charlesng35/crmhub/pkg/mail"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
	defaultRefreshLength    = 48
)

var defaultOIDCScopes = []string{"openid", "email", "profile"}

func durationOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

func intOr(n, fallback int) int {
	if n > 0 {
		return n
	}
	return fallback
}

// RedisClientConfig maps the cache section onto cache.RedisConfig.
func (c CacheConfig) RedisClientConfig() cache.RedisConfig {
	r := c.Redis
	return cache.RedisConfig{
		Address:  strings.TrimSpace(r.Address),
		Username: strings.TrimSpace(r.Username),
		Password: r.Password,
		DB:       r.DB,
		TLS:      r.TLS,
		Timeout:  r.Timeout,
	}
}

// SMTPSettings maps the email section onto the mailer settings.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	s := c.SMTP
	return mail.SMTPSettings{
		Enabled:  s.Enabled,
		Host:     strings.TrimSpace(s.Host),
		Port:     s.Port,
		Username: s.Username,
		Password: s.Password,
		From:     strings.TrimSpace(s.From),
		UseTLS:   s.UseTLS,
		Timeout:  s.Timeout,
	}
}

func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: durationOr(c.JWT.TTL, auth.DefaultAccessTokenTTL),
	}
}

func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	return auth.SessionConfig{
		RefreshTokenTTL: durationOr(c.Session.RefreshTTL, auth.DefaultRefreshTokenTTL),
		RefreshLength:   intOr(c.Session.RefreshLength, defaultRefreshLength),
	}
}

// LocalProviderConfig returns the password lockout policy.
func (c AuthConfig) LocalProviderConfig() providers.LocalConfig {
	return providers.LocalConfig{
		LockoutThreshold: intOr(c.Local.LockoutThreshold, defaultLockoutThreshold),
		LockoutDuration:  durationOr(c.Local.LockoutDuration, defaultLockoutDuration),
	}
}

// OIDCProviderConfigs lists the enabled social login providers, Google first.
func (c AuthConfig) OIDCProviderConfigs() []providers.OIDCConfig {
	var out []providers.OIDCConfig
	add := func(name, display string, p OAuthProviderConfig) {
		if !p.Enabled {
			return
		}
		scopes := p.Scopes
		if len(scopes) == 0 {
			scopes = append([]string(nil), defaultOIDCScopes...)
		}
		out = append(out, providers.OIDCConfig{
			Name:         name,
			DisplayName:  display,
			Issuer:       strings.TrimSpace(p.Issuer),
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			RedirectURL:  p.RedirectURL,
			Scopes:       scopes,
			Order:        (len(out) + 1) * 10,
		})
	}
	add("google", "Google", c.OAuth.Google)
	add("microsoft", "Microsoft", c.OAuth.Microsoft)
	return out
}

// Connection resolves the database section into what database.Open takes.
// Unknown drivers pass through so Open can reject them.
func (c DatabaseConfig) Connection() database.Config {
	out := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(c.Driver)),
		Path:   strings.TrimSpace(c.Path),
		DSN:    strings.TrimSpace(c.DSN),
	}
	var host *DBAuthConfig
	switch out.Driver {
	case "", "sqlite":
		out.Driver = "sqlite"
	case "postgres", "postgresql":
		out.Driver, host = "postgres", &c.Postgres
	case "mysql":
		host = &c.MySQL
	}
	if host != nil {
		out.Host = strings.TrimSpace(host.Host)
		out.Port = host.Port
		out.Name = strings.TrimSpace(host.Database)
		out.User = strings.TrimSpace(host.Username)
		out.Password = strings.TrimSpace(host.Password)
		out.Options = parseOptions(host.Options)
	}
	return out
}

// parseOptions reads "sslmode=disable&timezone=UTC"; spaces also separate
// pairs and malformed pairs are dropped.
func parseOptions(raw string) map[string]string {
	pairs := strings.FieldsFunc(raw, func(r rune) bool { return r == '&' || r == ' ' })
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		if key, value, ok := strings.Cut(pair, "="); ok && strings.TrimSpace(key) != "" {
			out[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
