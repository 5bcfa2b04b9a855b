package security

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charlesng35/crmhub/internal/app"
	"github.com/charlesng35/crmhub/internal/models"
)

const (
	minJWTSecret       = 32
	preferredJWTSecret = 48
	maxRefreshTTL      = 30 * 24 * time.Hour
)

func (a *Auditor) superuserCheck(ctx context.Context) Check {
	if a.db == nil {
		return verdict(CheckSuperuser, StatusWarn, "Database unavailable; superuser presence unknown.").
			fix("Ensure database connectivity before running the audit.")
	}
	var n int64
	err := a.db.WithContext(ctx).Model(&models.User{}).
		Where("is_superuser = ? AND is_active = ?", true, true).
		Count(&n).Error
	switch {
	case err != nil:
		return verdict(CheckSuperuser, StatusWarn, fmt.Sprintf("Could not count superusers: %v", err))
	case n == 0:
		return verdict(CheckSuperuser, StatusFail, "No active superuser exists.").
			fix("Run `crmhub create-superuser` to provision an operator account.")
	}
	return verdict(CheckSuperuser, StatusPass, "Active superuser present.").with(map[string]any{"count": n})
}

func jwtSecretCheck(cfg *app.Config) Check {
	n := len(strings.TrimSpace(cfg.Auth.JWT.Secret))
	details := map[string]any{"length": n}
	switch {
	case n == 0:
		return verdict(CheckJWTSecret, StatusFail, "Missing JWT signing secret.").
			fix(fmt.Sprintf("Set CRMHUB_AUTH_JWT_SECRET to at least %d random bytes.", minJWTSecret))
	case n < minJWTSecret:
		return verdict(CheckJWTSecret, StatusFail, fmt.Sprintf("JWT signing secret is too short (%d bytes).", n)).
			fix(fmt.Sprintf("Use a randomly generated secret of at least %d bytes.", minJWTSecret)).
			with(details)
	case n < preferredJWTSecret:
		return verdict(CheckJWTSecret, StatusWarn, fmt.Sprintf("JWT signing secret is %d bytes; %d or more is recommended.", n, preferredJWTSecret)).
			with(details)
	}
	return verdict(CheckJWTSecret, StatusPass, fmt.Sprintf("JWT signing secret is %d bytes.", n)).with(details)
}

func encryptionKeyCheck(cfg *app.Config) Check {
	if strings.TrimSpace(cfg.Security.EncryptionKey) == "" {
		return verdict(CheckEncryptionKey, StatusFail, "Encryption key is not configured; MFA secrets cannot be sealed.").
			fix("Set CRMHUB_SECURITY_ENCRYPTION_KEY to a 32 byte hex value.")
	}
	raw, err := app.DecodeKey(cfg.Security.EncryptionKey)
	if err == nil {
		_, err = cfg.Security.AESKey()
	}
	if err != nil {
		return verdict(CheckEncryptionKey, StatusFail, err.Error())
	}
	if len(raw) != 32 {
		return verdict(CheckEncryptionKey, StatusWarn, "Encryption key is a passphrase and is stretched at startup.").
			fix("Prefer a raw 32 byte key encoded as hex or base64.").
			with(map[string]any{"length": len(raw)})
	}
	return verdict(CheckEncryptionKey, StatusPass, "AES-256 encryption key configured.")
}

func refreshTTLCheck(cfg *app.Config) Check {
	ttl := cfg.Auth.Session.RefreshTTL
	switch {
	case ttl <= 0:
		return verdict(CheckRefreshTTL, StatusWarn, "Refresh token TTL is not configured; the default applies.")
	case ttl > maxRefreshTTL:
		return verdict(CheckRefreshTTL, StatusWarn, fmt.Sprintf("Refresh token TTL (%s) exceeds %s.", ttl, maxRefreshTTL)).
			fix("Reduce the refresh token TTL to 30 days or lower.").
			with(map[string]any{"ttl": ttl.String()})
	}
	return verdict(CheckRefreshTTL, StatusPass, fmt.Sprintf("Refresh token TTL is %s.", ttl)).
		with(map[string]any{"ttl": ttl.String()})
}

func corsCheck(cfg *app.Config) Check {
	const remedy = "List the frontend origins in server.cors.allowed_origins."
	origins := cfg.Server.CORS.AllowedOrigins
	switch {
	case slices.ContainsFunc(origins, func(o string) bool { return strings.TrimSpace(o) == "*" }):
		return verdict(CheckCORS, StatusWarn, "Any origin may call the API from a browser.").fix(remedy)
	case len(origins) == 0:
		return verdict(CheckCORS, StatusWarn, "No CORS allow-list configured; every origin is accepted.").fix(remedy)
	}
	return verdict(CheckCORS, StatusPass, fmt.Sprintf("%d browser origins allowed.", len(origins))).
		with(map[string]any{"origins": origins})
}
