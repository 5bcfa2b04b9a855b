package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
)

type ContactHandler struct {
	*ResourceHandler[models.Contact, services.ContactInput]
	svc *services.ContactService
}

type contactTagsRequest struct {
	TagIDs []string `json:"tags" validate:"required,min=1,dive,uuid"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func NewContactHandler(svc *services.ContactService) *ContactHandler {
	return &ContactHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// POST /api/v1/contacts/:id/tags
func (h *ContactHandler) AddTags(c *gin.Context) {
	var body contactTagsRequest
	if !bindAndValidate(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Contact, error) {
		return h.svc.AddTags(ctx, scope, c.Param("id"), body.TagIDs)
	})
}

// DELETE /api/v1/contacts/:id/tags/:tag_id
func (h *ContactHandler) RemoveTag(c *gin.Context) {
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Contact, error) {
		return h.svc.RemoveTag(ctx, scope, c.Param("id"), c.Param("tag_id"))
	})
}

// POST /api/v1/contacts/bulk-delete
func (h *ContactHandler) BulkDelete(c *gin.Context) {
	var body bulkDeleteRequest
	if !bindJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (gin.H, error) {
		deleted, err := h.svc.BulkDelete(ctx, scope, body.IDs)
		return gin.H{"deleted": deleted}, err
	})
}

// POST /api/v1/contacts/bulk-update
func (h *ContactHandler) BulkUpdate(c *gin.Context) {
	var body services.BulkUpdateContactsInput
	if !bindJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (gin.H, error) {
		updated, err := h.svc.BulkUpdate(ctx, scope, body)
		return gin.H{"updated": updated}, err
	})
}

// POST /api/v1/contacts/merge
func (h *ContactHandler) Merge(c *gin.Context) {
	var body services.MergeContactsInput
	if !bindJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Contact, error) {
		return h.svc.Merge(ctx, scope, body)
	})
}

// GET /api/v1/contacts/duplicates
func (h *ContactHandler) Duplicates(c *gin.Context) {
	scopedAction(c, http.StatusOK, h.svc.Duplicates)
}

// GET /api/v1/contacts/:id/activities
func (h *ContactHandler) Activities(c *gin.Context) {
	scopedList(c, func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[models.Activity], error) {
		return h.svc.Activities(ctx, scope, c.Param("id"), q)
	})
}

// GET /api/v1/contacts/:id/opportunities
func (h *ContactHandler) Opportunities(c *gin.Context) {
	scopedList(c, func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[models.Opportunity], error) {
		return h.svc.Opportunities(ctx, scope, c.Param("id"), q)
	})
}

// GET /api/v1/contacts/:id/tasks
func (h *ContactHandler) Tasks(c *gin.Context) {
	scopedList(c, func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[models.Task], error) {
		return h.svc.Tasks(ctx, scope, c.Param("id"), q)
	})
}

type CompanyHandler struct {
	*ResourceHandler[models.Company, services.CompanyInput]
	svc *services.CompanyService
}

func NewCompanyHandler(svc *services.CompanyService) *CompanyHandler {
	return &CompanyHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// GET /api/v1/companies/:id/contacts
func (h *CompanyHandler) Contacts(c *gin.Context) {
	scopedList(c, func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[models.Contact], error) {
		return h.svc.Contacts(ctx, scope, c.Param("id"), q)
	})
}
