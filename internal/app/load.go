package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "CRMHUB"

var defaults = map[string]any{
	"server.port":                 8000,
	"server.log_level":            "info",
	"server.log_file":             "",
	"server.base_url":             "http://localhost:8000",
	"server.cors.allowed_origins": []string{"http://localhost:3000"},
	"server.rate_limit.requests":  300,
	"server.rate_limit.window":    "1m",
	"server.headers.hsts":         true,

	"database.driver":        "sqlite",
	"database.path":          "./data/crmhub.sqlite",
	"database.postgres.port": 5432,
	"database.mysql.port":    3306,

	"cache.redis.enabled": false,
	"cache.redis.address": "127.0.0.1:6379",
	"cache.redis.db":      0,
	"cache.redis.tls":     false,
	"cache.redis.timeout": "5s",

	"auth.jwt.issuer":                   "crmhub",
	"auth.jwt.access_token_ttl":         "15m",
	"auth.session.refresh_token_ttl":    "720h",
	"auth.session.refresh_token_length": 48,
	"auth.local.lockout_threshold":      5,
	"auth.local.lockout_duration":       "15m",
	"auth.mfa.issuer":                   "CRM SaaS",
	"auth.oauth.google.issuer":          "https://accounts.google.com",
	"auth.oauth.microsoft.issuer":       "https://login.microsoftonline.com/common/v2.0",

	"invitations.expiry":     "168h",
	"invitations.accept_url": "http://localhost:3000/invitations/accept",

	"email.smtp.enabled": false,
	"email.smtp.port":    587,
	"email.smtp.from":    "no-reply@crmhub.local",
	"email.smtp.use_tls": true,
	"email.smtp.timeout": "10s",

	"storage.driver":          "local",
	"storage.local_path":      "./data/uploads",
	"storage.public_base_url": "http://localhost:8000/media",
	"storage.minio.bucket":    "crmhub",
	"storage.minio.use_tls":   true,

	"maintenance.audit_retention_days": 90,
	"maintenance.session_schedule":     "@hourly",
	"maintenance.audit_schedule":       "0 3 * * *",
	"maintenance.token_schedule":       "@hourly",
	"maintenance.report_schedule":      "*/15 * * * *",

	"monitoring.health.enabled":      true,
	"monitoring.prometheus.enabled":  true,
	"monitoring.prometheus.endpoint": "/metrics",
}

// LoadConfig reads config.yaml from ./config, the working directory or paths
// over the built-in defaults. CRMHUB_* environment variables win over both.
// A missing file is fine; a malformed one is not.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range append([]string{"./config", "."}, paths...) {
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, new(viper.ConfigFileNotFoundError)) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
