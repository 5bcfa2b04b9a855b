package app

import "time"

// Config is the full runtime configuration. Every key can be overridden
// from the environment as CRMHUB_<SECTION>_<KEY>.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Invitations InvitationConfig  `mapstructure:"invitations"`
	Email       EmailConfig       `mapstructure:"email"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Security    SecurityConfig    `mapstructure:"security"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
}

type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	LogLevel  string          `mapstructure:"log_level"`
	LogFile   string          `mapstructure:"log_file"`
	BaseURL   string          `mapstructure:"base_url"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Headers   HeadersConfig   `mapstructure:"headers"`
}

// HeadersConfig adjusts the security headers. An empty policy keeps the
// built-in deny-all Content-Security-Policy.
type HeadersConfig struct {
	ContentSecurityPolicy string `mapstructure:"content_security_policy"`
	HSTS                  bool   `mapstructure:"hsts"`
}

// An origin of "*" allows any.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// DatabaseConfig picks a driver. DSN, when set, wins over the host block
// for that driver; sqlite only reads Path.
type DatabaseConfig struct {
	Driver   string       `mapstructure:"driver"`
	Path     string       `mapstructure:"path"`
	DSN      string       `mapstructure:"dsn"`
	Postgres DBAuthConfig `mapstructure:"postgres"`
	MySQL    DBAuthConfig `mapstructure:"mysql"`
}

// Options is a query string, e.g. "sslmode=disable&timezone=UTC".
type DBAuthConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Options  string `mapstructure:"options"`
}

type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// With Redis disabled, rate limits and SSO state claims use the cache_entries table.
type RedisCacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TLS      bool          `mapstructure:"tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type AuthConfig struct {
	JWT     JWTSettings       `mapstructure:"jwt"`
	Session SessionSettings   `mapstructure:"session"`
	Local   LocalAuthSettings `mapstructure:"local"`
	MFA     MFASettings       `mapstructure:"mfa"`
	OAuth   OAuthSettings     `mapstructure:"oauth"`
}

type JWTSettings struct {
	Secret string        `mapstructure:"secret"`
	Issuer string        `mapstructure:"issuer"`
	TTL    time.Duration `mapstructure:"access_token_ttl"`
}

// RefreshLength is in random bytes before encoding.
type SessionSettings struct {
	RefreshTTL    time.Duration `mapstructure:"refresh_token_ttl"`
	RefreshLength int           `mapstructure:"refresh_token_length"`
}

// LocalAuthSettings locks an account for LockoutDuration after
// LockoutThreshold consecutive bad passwords.
type LocalAuthSettings struct {
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
}

type MFASettings struct {
	Issuer string `mapstructure:"issuer"`
}

type OAuthSettings struct {
	Google    OAuthProviderConfig `mapstructure:"google"`
	Microsoft OAuthProviderConfig `mapstructure:"microsoft"`
}

type OAuthProviderConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Issuer       string   `mapstructure:"issuer"`
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
}

// AcceptURL is the front-end page; the token is appended as ?token=.
type InvitationConfig struct {
	Expiry    time.Duration `mapstructure:"expiry"`
	AcceptURL string        `mapstructure:"accept_url"`
}

type EmailConfig struct {
	SMTP SMTPConfig `mapstructure:"smtp"`
}

// UseTLS means STARTTLS on a plain connection.
type SMTPConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	UseTLS   bool          `mapstructure:"use_tls"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects where uploaded branding assets are written.
type StorageConfig struct {
	Driver        string      `mapstructure:"driver"`
	LocalPath     string      `mapstructure:"local_path"`
	PublicBaseURL string      `mapstructure:"public_base_url"`
	Minio         MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	UseTLS    bool   `mapstructure:"use_tls"`
}

// SecurityConfig keys the AES-GCM sealing of MFA seeds. A key that is not
// 16, 24 or 32 raw bytes is stretched with argon2id over KeySalt.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
	KeySalt       string `mapstructure:"key_salt"`
}

// Schedules are robfig/cron specs; an empty one disables that job.
type MaintenanceConfig struct {
	AuditRetentionDays int    `mapstructure:"audit_retention_days"`
	SessionSchedule    string `mapstructure:"session_schedule"`
	AuditSchedule      string `mapstructure:"audit_schedule"`
	TokenSchedule      string `mapstructure:"token_schedule"`
	ReportSchedule     string `mapstructure:"report_schedule"`
}

type MonitoringConfig struct {
	Health     HealthConfig     `mapstructure:"health"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type PrometheusConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}
