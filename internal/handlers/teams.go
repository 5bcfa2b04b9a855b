package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
)

type TeamHandler struct {
	svc *services.TeamService
}

type teamMemberRequest struct {
	MembershipID string `json:"membership" validate:"required,uuid"`
}

func NewTeamHandler(svc *services.TeamService) *TeamHandler {
	return &TeamHandler{svc: svc}
}

// GET /api/v1/organizations/:organization_id/teams
func (h *TeamHandler) List(c *gin.Context) {
	tenantList(c, h.svc.List)
}

// GET /api/v1/organizations/:organization_id/teams/:id
func (h *TeamHandler) Get(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Team, error) {
		return h.svc.Get(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/teams
func (h *TeamHandler) Create(c *gin.Context) {
	var body services.CreateTeamInput
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusCreated, func(ctx context.Context, scope tenancy.Scope) (*models.Team, error) {
		return h.svc.Create(ctx, scope, body)
	})
}

// PATCH /api/v1/organizations/:organization_id/teams/:id
func (h *TeamHandler) Update(c *gin.Context) {
	var body services.UpdateTeamInput
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Team, error) {
		return h.svc.Update(ctx, scope, c.Param("id"), body)
	})
}

// DELETE /api/v1/organizations/:organization_id/teams/:id
func (h *TeamHandler) Delete(c *gin.Context) {
	tenantDelete(c, func(ctx context.Context, scope tenancy.Scope) error {
		return h.svc.Delete(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/teams/:id/members
func (h *TeamHandler) AddMember(c *gin.Context) {
	var body teamMemberRequest
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Team, error) {
		return h.svc.AddMember(ctx, scope, c.Param("id"), body.MembershipID)
	})
}

// DELETE /api/v1/organizations/:organization_id/teams/:id/members/:membership_id
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Team, error) {
		return h.svc.RemoveMember(ctx, scope, c.Param("id"), c.Param("membership_id"))
	})
}
