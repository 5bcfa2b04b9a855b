package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/response"
)

type InvitationHandler struct {
	svc *services.InvitationService
}

// issuedInvitationResponse exposes the one-time token to the inviting admin.
type issuedInvitationResponse struct {
	Invitation *models.Invitation `json:"invitation"`
	Token      string             `json:"token"`
	AcceptURL  string             `json:"accept_url,omitempty"`
}

func newIssuedInvitationResponse(issued *services.IssuedInvitation) issuedInvitationResponse {
	return issuedInvitationResponse{
		Invitation: issued.Invitation,
		Token:      issued.Token,
		AcceptURL:  issued.AcceptURL,
	}
}

func NewInvitationHandler(svc *services.InvitationService) *InvitationHandler {
	return &InvitationHandler{svc: svc}
}

// GET /api/v1/organizations/:organization_id/invitations
func (h *InvitationHandler) List(c *gin.Context) {
	tenantList(c, h.svc.List)
}

// GET /api/v1/organizations/:organization_id/invitations/:id
func (h *InvitationHandler) Get(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Invitation, error) {
		return h.svc.Get(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/invitations
func (h *InvitationHandler) Create(c *gin.Context) {
	var body services.CreateInvitationInput
	if !bindJSON(c, &body) {
		return
	}
	tenantAction(c, http.StatusCreated, func(ctx context.Context, scope tenancy.Scope) (issuedInvitationResponse, error) {
		issued, err := h.svc.Create(ctx, scope, body)
		if err != nil {
			return issuedInvitationResponse{}, err
		}
		return newIssuedInvitationResponse(issued), nil
	})
}

// POST /api/v1/organizations/:organization_id/invitations/:id/cancel
func (h *InvitationHandler) Cancel(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Invitation, error) {
		return h.svc.Cancel(ctx, scope, c.Param("id"))
	})
}

// POST /api/v1/organizations/:organization_id/invitations/:id/resend
// Resending rotates the token and pushes the expiry forward.
func (h *InvitationHandler) Resend(c *gin.Context) {
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (issuedInvitationResponse, error) {
		issued, err := h.svc.Resend(ctx, scope, c.Param("id"))
		if err != nil {
			return issuedInvitationResponse{}, err
		}
		return newIssuedInvitationResponse(issued), nil
	})
}

// GET /api/v1/invitations/:token
func (h *InvitationHandler) Peek(c *gin.Context) {
	preview, err := h.svc.Peek(requestContext(c), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}

// POST /api/v1/invitations/:token/accept
func (h *InvitationHandler) Accept(c *gin.Context) {
	var body services.AcceptInvitationInput
	if !bindOptionalJSON(c, &body) {
		return
	}
	accepted, err := h.svc.Accept(requestContext(c), c.Param("token"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if accepted.UserCreated {
		status = http.StatusCreated
	}
	response.Success(c, status, accepted)
}
