package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/response"
)

type LeadHandler struct {
	*ResourceHandler[models.Lead, services.LeadInput]
	svc *services.LeadService
}

type leadStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted qualified unqualified converted"`
}

type leadScoreRequest struct {
	Score *int `json:"score" validate:"required"`
}

func NewLeadHandler(svc *services.LeadService) *LeadHandler {
	return &LeadHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// PATCH /api/v1/leads/:id/status
func (h *LeadHandler) UpdateStatus(c *gin.Context) {
	var body leadStatusRequest
	if !bindAndValidate(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Lead, error) {
		return h.svc.UpdateStatus(ctx, scope, c.Param("id"), body.Status)
	})
}

// PATCH /api/v1/leads/:id/score
func (h *LeadHandler) UpdateScore(c *gin.Context) {
	var body leadScoreRequest
	if !bindAndValidate(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Lead, error) {
		return h.svc.UpdateScore(ctx, scope, c.Param("id"), *body.Score)
	})
}

// POST /api/v1/leads/:id/convert
func (h *LeadHandler) Convert(c *gin.Context) {
	var body services.ConvertLeadInput
	if !bindOptionalJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*services.ConvertedLead, error) {
		return h.svc.Convert(ctx, scope, c.Param("id"), body)
	})
}

// GET /api/v1/leads/stats
func (h *LeadHandler) Stats(c *gin.Context) {
	scopedAction(c, http.StatusOK, h.svc.Stats)
}

// GET /api/v1/leads/:id/activities
func (h *LeadHandler) Activities(c *gin.Context) {
	scopedList(c, func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[models.Activity], error) {
		return h.svc.Activities(ctx, scope, c.Param("id"), q)
	})
}

type StageHandler struct {
	*ResourceHandler[models.OpportunityStage, services.StageInput]
	svc *services.StageService
}

type reorderStagesRequest struct {
	StageIDs []string `json:"stage_ids" validate:"required,min=1,dive,uuid"`
}

func NewStageHandler(svc *services.StageService) *StageHandler {
	return &StageHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// POST /api/v1/opportunity-stages/reorder
func (h *StageHandler) Reorder(c *gin.Context) {
	var body reorderStagesRequest
	if !bindAndValidate(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) ([]models.OpportunityStage, error) {
		return h.svc.Reorder(ctx, scope, body.StageIDs)
	})
}

type OpportunityHandler struct {
	*ResourceHandler[models.Opportunity, services.OpportunityInput]
	svc *services.OpportunityService
}

type closeOpportunityRequest struct {
	ActualCloseAt *time.Time `json:"actual_close_date"`
}

type moveStageRequest struct {
	StageID string `json:"stage" validate:"required,uuid"`
}

func NewOpportunityHandler(svc *services.OpportunityService) *OpportunityHandler {
	return &OpportunityHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// POST /api/v1/opportunities/:id/mark-won
func (h *OpportunityHandler) MarkWon(c *gin.Context) {
	var body closeOpportunityRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Opportunity, error) {
		return h.svc.MarkWon(ctx, scope, c.Param("id"), body.ActualCloseAt)
	})
}

// POST /api/v1/opportunities/:id/mark-lost
func (h *OpportunityHandler) MarkLost(c *gin.Context) {
	var body closeOpportunityRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Opportunity, error) {
		return h.svc.MarkLost(ctx, scope, c.Param("id"), body.ActualCloseAt)
	})
}

// POST /api/v1/opportunities/:id/move-stage
func (h *OpportunityHandler) MoveStage(c *gin.Context) {
	var body moveStageRequest
	if !bindAndValidate(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Opportunity, error) {
		return h.svc.MoveStage(ctx, scope, c.Param("id"), body.StageID)
	})
}

// POST /api/v1/opportunities/:id/line-items
func (h *OpportunityHandler) AddLineItem(c *gin.Context) {
	var body services.LineItemInput
	if !bindJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusCreated, func(ctx context.Context, scope tenancy.Scope) (*models.OpportunityLineItem, error) {
		return h.svc.AddLineItem(ctx, scope, c.Param("id"), body)
	})
}

// PATCH /api/v1/opportunities/:id/line-items/:item_id
func (h *OpportunityHandler) UpdateLineItem(c *gin.Context) {
	var body services.LineItemInput
	if !bindJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.OpportunityLineItem, error) {
		return h.svc.UpdateLineItem(ctx, scope, c.Param("id"), c.Param("item_id"), body)
	})
}

// DELETE /api/v1/opportunities/:id/line-items/:item_id
func (h *OpportunityHandler) DeleteLineItem(c *gin.Context) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteLineItem(requestContext(c), scope, c.Param("id"), c.Param("item_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Deleted(c, deletedMessage)
}

// GET /api/v1/opportunities/pipeline
func (h *OpportunityHandler) Pipeline(c *gin.Context) {
	q := listQuery(c)
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) ([]services.PipelineStage, error) {
		return h.svc.Pipeline(ctx, scope, q)
	})
}

// GET /api/v1/opportunities/forecast
func (h *OpportunityHandler) Forecast(c *gin.Context) {
	scopedAction(c, http.StatusOK, h.svc.Forecast)
}
