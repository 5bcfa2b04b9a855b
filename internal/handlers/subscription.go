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

type SubscriptionHandler struct {
	svc *services.SubscriptionService
}

func NewSubscriptionHandler(svc *services.SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{svc: svc}
}

// GET /api/v1/organizations/:organization_id/subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	tenantAction(c, http.StatusOK, h.svc.Get)
}

// PATCH /api/v1/organizations/:organization_id/subscription
func (h *SubscriptionHandler) Update(c *gin.Context) {
	var body services.UpdateSubscriptionInput
	if !bindAndValidate(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Subscription, error) {
		return h.svc.Update(ctx, scope, body)
	})
}

// POST /api/v1/organizations/:organization_id/subscription/upgrade
func (h *SubscriptionHandler) Upgrade(c *gin.Context) {
	var body services.ChangePlanInput
	if !bindJSON(c, &body) {
		return
	}
	tenantAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Subscription, error) {
		return h.svc.Upgrade(ctx, scope, body)
	})
}

// POST /api/v1/organizations/:organization_id/subscription/cancel
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	tenantAction(c, http.StatusOK, h.svc.Cancel)
}

// POST /api/v1/organizations/:organization_id/subscription/reactivate
func (h *SubscriptionHandler) Reactivate(c *gin.Context) {
	tenantAction(c, http.StatusOK, h.svc.Reactivate)
}

// GET /api/v1/plans
func (h *SubscriptionHandler) Plans(c *gin.Context) {
	response.Success(c, http.StatusOK, services.Plans())
}
