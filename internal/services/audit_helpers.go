package services

import (
	"context"

	"github.com/charlesng35/crmhub/internal/tenancy"
)

// recordAudit logs the supplied entry while tolerating audit failures.
func recordAudit(audit *AuditService, ctx context.Context, entry AuditEntry) {
	if audit == nil {
		return
	}
	_ = audit.Log(ctx, entry)
}

// scopedAudit records a successful action on a tenant resource.
func scopedAudit(audit *AuditService, ctx context.Context, scope tenancy.Scope, organizationID, action, resourceID string, metadata map[string]any) {
	recordAudit(audit, ctx, AuditEntry{
		OrganizationID: stringPtr(organizationID),
		UserID:         scope.Actor(),
		Action:         action,
		Resource:       resourceID,
		Result:         AuditSuccess,
		Metadata:       metadata,
	})
}
