package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
)

type MembershipHandler struct {
	svc *services.MembershipService
}

type memberRoleRequest struct {
	RoleID *string `json:"role" validate:"omitempty,uuid"`
}

func NewMembershipHandler(svc *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{svc: svc}
}

// GET /api/v1/organizations/:organization_id/members
func (h *MembershipHandler) List(c *gin.Context) {
	tenantList(c, h.svc.List)
}

// GET /api/v1/organizations/:organization_id/members/:id
func (h *MembershipHandler) Get(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Membership, error) {
		return h.svc.Get(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/members
func (h *MembershipHandler) Add(c *gin.Context) {
	var body services.AddMemberInput
	if !bindJSON(c, &body) {
		return
	}
	tenantAction(c, http.StatusCreated, func(ctx context.Context, scope tenancy.Scope) (*models.Membership, error) {
		return h.svc.Add(ctx, scope, body)
	})
}

// PATCH /api/v1/organizations/:organization_id/members/:id
func (h *MembershipHandler) Update(c *gin.Context) {
	var body services.UpdateMemberInput
	if !bindJSON(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Membership, error) {
		return h.svc.Update(ctx, scope, c.Param("id"), body)
	})
}

// PUT /api/v1/organizations/:organization_id/members/:id/role
// A null role clears the assignment.
func (h *MembershipHandler) UpdateRole(c *gin.Context) {
	var body memberRoleRequest
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Membership, error) {
		return h.svc.UpdateRole(ctx, scope, c.Param("id"), body.RoleID)
	})
}

// DELETE /api/v1/organizations/:organization_id/members/:id
func (h *MembershipHandler) Remove(c *gin.Context) {
	tenantDelete(c, func(ctx context.Context, scope tenancy.Scope) error {
		return h.svc.Remove(ctx, scope, c.Param("id"))
	})
}
