package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/auditctx"
	"github.com/charlesng35/crmhub/internal/models"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
	AuditDenied  = "denied"
)

// AuditEntry captures a single audit event to persist.
type AuditEntry struct {
	OrganizationID *string
	UserID         *string
	Email          string
	Action         string
	Resource       string
	Result         string
	IPAddress      string
	UserAgent      string
	Metadata       map[string]any
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// Log stores an audit entry.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit service: action is required")
	}
	if strings.TrimSpace(entry.Result) == "" {
		return errors.New("audit service: result is required")
	}

	if actor, ok := auditctx.FromContext(ctx); ok {
		if entry.IPAddress == "" {
			entry.IPAddress = actor.IPAddress
		}
		if entry.UserAgent == "" {
			entry.UserAgent = actor.UserAgent
		}
		if entry.Email == "" && entry.UserID != nil && *entry.UserID == actor.UserID {
			entry.Email = actor.Email
		}
		entry.Metadata = actor.Annotate(entry.Metadata)
	}

	log := models.AuditLog{
		OrganizationID: optionalID(entry.OrganizationID),
		UserID:         optionalID(entry.UserID),
		Email:          normaliseEmail(entry.Email),
		Action:         strings.TrimSpace(entry.Action),
		Resource:       strings.TrimSpace(entry.Resource),
		Result:         strings.TrimSpace(entry.Result),
		IPAddress:      strings.TrimSpace(entry.IPAddress),
		UserAgent:      strings.TrimSpace(entry.UserAgent),
		Metadata:       entry.Metadata,
	}

	return s.db.WithContext(ctx).Create(&log).Error
}

var auditListSpec = ListSpec{
	Filters: map[string]string{
		"user_id":  "user_id",
		"action":   "action",
		"result":   "result",
		"resource": "resource",
	},
	DateFilters: map[string]string{"created": "created_at"},
	Orderings:   map[string]string{"created_at": "created_at", "action": "action"},
	Custom: func(query *gorm.DB, filters map[string]string) *gorm.DB {
		query = lowerBound(query, "audit_logs.created_at", filters["since"])
		return upperBound(query, "audit_logs.created_at", filters["until"])
	},
}

// List pages through one organization's audit trail, newest first.
// "since" and "until" are accepted alongside created_after/created_before.
func (s *AuditService) List(ctx context.Context, organizationID string, q ListQuery) (Page[models.AuditLog], error) {
	query := s.db.WithContext(ensureContext(ctx)).
		Model(&models.AuditLog{}).
		Where("audit_logs.organization_id = ?", organizationID)
	page, err := paginate[models.AuditLog](query, auditListSpec, "audit_logs", q)
	if err != nil {
		return page, fmt.Errorf("audit service: %w", err)
	}
	return page, nil
}

// CleanupOlderThan deletes entries older than retentionDays and reports how many went.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("audit service: retention must be positive, got %d days", retentionDays)
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	res := s.db.WithContext(ensureContext(ctx)).Where("created_at < ?", cutoff).Delete(&models.AuditLog{})
	if res.Error != nil {
		return 0, fmt.Errorf("audit service: purge before %s: %w", cutoff.Format(time.DateOnly), res.Error)
	}
	return res.RowsAffected, nil
}
