package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/permissions"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

type RoleHandler struct {
	svc     *services.RoleService
	checker *permissions.Checker
}

func NewRoleHandler(svc *services.RoleService, checker *permissions.Checker) *RoleHandler {
	return &RoleHandler{svc: svc, checker: checker}
}

// GET /api/v1/organizations/:organization_id/roles
func (h *RoleHandler) List(c *gin.Context) {
	tenantList(c, h.svc.List)
}

// GET /api/v1/organizations/:organization_id/roles/:id
func (h *RoleHandler) Get(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Role, error) {
		return h.svc.Get(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/roles
func (h *RoleHandler) Create(c *gin.Context) {
	var body services.CreateRoleInput
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusCreated, func(ctx context.Context, scope tenancy.Scope) (*models.Role, error) {
		return h.svc.Create(ctx, scope, body)
	})
}

// PATCH /api/v1/organizations/:organization_id/roles/:id
func (h *RoleHandler) Update(c *gin.Context) {
	var body services.UpdateRoleInput
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Role, error) {
		return h.svc.Update(ctx, scope, c.Param("id"), body)
	})
}

// DELETE /api/v1/organizations/:organization_id/roles/:id
func (h *RoleHandler) Delete(c *gin.Context) {
	tenantDelete(c, func(ctx context.Context, scope tenancy.Scope) error {
		return h.svc.Delete(ctx, scope, c.Param("id"))
	})
}

// GET /api/v1/permissions
func (h *RoleHandler) Catalog(c *gin.Context) {
	response.Success(c, http.StatusOK, permissions.Catalog())
}

// GET /api/v1/organizations/:organization_id/permissions/me
func (h *RoleHandler) Mine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	org, ok := middleware.TenantOrganization(c)
	if !ok {
		return
	}
	if org == nil {
		response.Error(c, errors.FieldError("organization", "organization is required"))
		return
	}
	granted, err := h.checker.Effective(requestContext(c), org.ID, userID)
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"organization": org.ID,
		"permissions":  granted,
	})
}
