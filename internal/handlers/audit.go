package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/v1/organizations/:organization_id/audit-logs
//
// Filters: user_id, action, result, resource (comma separated for IN),
// since/until or created_after/created_before.
func (h *AuditHandler) List(c *gin.Context) {
	org, ok := middleware.TenantOrganization(c)
	if !ok {
		return
	}
	if org == nil {
		response.Error(c, errors.FieldError("organization", "organization is required"))
		return
	}

	q := listQuery(c)
	for _, key := range []string{"since", "until"} {
		if _, err := parseTimeQuery(c, key); err != nil {
			response.Error(c, err)
			return
		}
	}

	page, err := h.svc.List(requestContext(c), org.ID, q)
	if err != nil {
		response.Error(c, err)
		return
	}
	writePage(c, page)
}
