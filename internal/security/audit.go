// Package security reviews a running deployment for weak configuration.
package security

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/app"
)

type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// Check IDs.
const (
	CheckSuperuser     = "superuser_present"
	CheckJWTSecret     = "jwt_secret_strength"
	CheckEncryptionKey = "encryption_key"
	CheckRefreshTTL    = "session_refresh_ttl"
	CheckCORS          = "cors_origins"
)

type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

func (c Check) fix(remediation string) Check {
	c.Remediation = remediation
	return c
}

func (c Check) with(details map[string]any) Check {
	c.Details = details
	return c
}

func verdict(id string, status CheckStatus, message string) Check {
	return Check{ID: id, Status: status, Message: message}
}

type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

func (r Result) Find(id string) *Check {
	for i, c := range r.Checks {
		if c.ID == id {
			return &r.Checks[i]
		}
	}
	return nil
}

// Auditor runs a fixed list of checks. A nil db or cfg turns the checks
// that need them into warnings rather than failures.
type Auditor struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

func NewAuditor(db *gorm.DB, cfg *app.Config) *Auditor {
	return &Auditor{db: db, cfg: cfg, now: time.Now}
}

func (a *Auditor) WithClock(now func() time.Time) {
	if now != nil {
		a.now = now
	}
}

type configCheck struct {
	id  string
	run func(*app.Config) Check
}

var configChecks = []configCheck{
	{CheckJWTSecret, jwtSecretCheck},
	{CheckEncryptionKey, encryptionKeyCheck},
	{CheckRefreshTTL, refreshTTLCheck},
	{CheckCORS, corsCheck},
}

func (a *Auditor) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := make([]Check, 0, 1+len(configChecks))
	checks = append(checks, a.superuserCheck(ctx))
	for _, cc := range configChecks {
		if a.cfg == nil {
			checks = append(checks, verdict(cc.id, StatusWarn, "Configuration not loaded.").
				fix("Load configuration before running the security audit."))
			continue
		}
		checks = append(checks, cc.run(a.cfg))
	}

	summary := map[string]int{string(StatusPass): 0, string(StatusWarn): 0, string(StatusFail): 0}
	for _, c := range checks {
		summary[string(c.Status)]++
	}
	return Result{CheckedAt: a.now().UTC(), Checks: checks, Summary: summary}
}
