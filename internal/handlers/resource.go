package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/response"
)

const deletedMessage = "Deleted successfully."

// scopedService is the CRUD surface every organization-scoped resource exposes.
type scopedService[T any, I any] interface {
	List(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[T], error)
	Get(ctx context.Context, scope tenancy.Scope, id string) (*T, error)
	Create(ctx context.Context, scope tenancy.Scope, input I) (*T, error)
	Update(ctx context.Context, scope tenancy.Scope, id string, input I) (*T, error)
	Delete(ctx context.Context, scope tenancy.Scope, id string) error
}

// ResourceHandler serves list/create/retrieve/update/delete for one scoped
// resource. Reads use the caller's tenant set narrowed by any organization
// reference; writes need the reference to resolve.
type ResourceHandler[T any, I any] struct {
	svc scopedService[T, I]
}

func NewResourceHandler[T any, I any](svc scopedService[T, I]) *ResourceHandler[T, I] {
	return &ResourceHandler[T, I]{svc: svc}
}

func (h *ResourceHandler[T, I]) List(c *gin.Context) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	page, err := h.svc.List(requestContext(c), scope, listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writePage(c, page)
}

func (h *ResourceHandler[T, I]) Get(c *gin.Context) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	item, err := h.svc.Get(requestContext(c), scope, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

func (h *ResourceHandler[T, I]) Create(c *gin.Context) {
	var input I
	if !bindJSON(c, &input) {
		return
	}
	scope, ok := middleware.TenantScope(c)
	if !ok {
		return
	}
	item, err := h.svc.Create(requestContext(c), scope, input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// Update handles both PUT and PATCH; absent fields are left untouched.
func (h *ResourceHandler[T, I]) Update(c *gin.Context) {
	var input I
	if !bindJSON(c, &input) {
		return
	}
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	item, err := h.svc.Update(requestContext(c), scope, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

func (h *ResourceHandler[T, I]) Delete(c *gin.Context) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(c), scope, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Deleted(c, deletedMessage)
}

// Register mounts the five standard routes on group.
func (h *ResourceHandler[T, I]) Register(group gin.IRoutes) {
	group.GET("", h.List)
	group.POST("", h.Create)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.PATCH("/:id", h.Update)
	group.DELETE("/:id", h.Delete)
}

// scopedList runs fn with the read scope and renders the resulting page.
func scopedList[T any](c *gin.Context, fn func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[T], error)) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	page, err := fn(requestContext(c), scope, listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writePage(c, page)
}

// scopedAction runs fn with the read scope and renders its result with status.
func scopedAction[T any](c *gin.Context, status int, fn func(ctx context.Context, scope tenancy.Scope) (T, error)) {
	scope, ok := middleware.TenantListScope(c)
	if !ok {
		return
	}
	result, err := fn(requestContext(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status, result)
}

// tenantAction is scopedAction for routes that need the organization resolved.
func tenantAction[T any](c *gin.Context, status int, fn func(ctx context.Context, scope tenancy.Scope) (T, error)) {
	scope, ok := middleware.TenantScope(c)
	if !ok {
		return
	}
	result, err := fn(requestContext(c), scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status, result)
}

// tenantDelete runs fn against the resolved organization and answers with an empty envelope.
func tenantDelete(c *gin.Context, fn func(ctx context.Context, scope tenancy.Scope) error) {
	scope, ok := middleware.TenantScope(c)
	if !ok {
		return
	}
	if err := fn(requestContext(c), scope); err != nil {
		response.Error(c, err)
		return
	}
	response.Deleted(c, deletedMessage)
}

// tenantList is scopedList for routes nested under one organization.
func tenantList[T any](c *gin.Context, fn func(ctx context.Context, scope tenancy.Scope, q services.ListQuery) (services.Page[T], error)) {
	scope, ok := middleware.TenantScope(c)
	if !ok {
		return
	}
	page, err := fn(requestContext(c), scope, listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writePage(c, page)
}
