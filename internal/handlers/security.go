package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/security"
	"github.com/charlesng35/crmhub/pkg/response"
)

// SecurityHandler exposes the deployment posture audit to superusers.
type SecurityHandler struct {
	auditor *security.Auditor
}

func NewSecurityHandler(auditor *security.Auditor) (*SecurityHandler, error) {
	if auditor == nil {
		return nil, errors.New("security handler: auditor is required")
	}
	return &SecurityHandler{auditor: auditor}, nil
}

// GET /api/v1/security/audit
func (h *SecurityHandler) Audit(c *gin.Context) {
	response.Success(c, http.StatusOK, h.auditor.Run(requestContext(c)))
}
