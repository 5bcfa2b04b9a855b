package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/services"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

const maxLogoUploadBytes = 5 << 20

type OrganizationHandler struct {
	svc *services.OrganizationService
}

func NewOrganizationHandler(svc *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{svc: svc}
}

// GET /api/v1/organizations
func (h *OrganizationHandler) List(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, err := h.svc.List(requestContext(c), userID, listQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	writePage(c, page)
}

// POST /api/v1/organizations
func (h *OrganizationHandler) Create(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.CreateOrganizationInput
	if !bindJSON(c, &body) {
		return
	}
	org, err := h.svc.Create(requestContext(c), userID, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, org)
}

// GET /api/v1/organizations/:organization_id
func (h *OrganizationHandler) Get(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	org, err := h.svc.Get(requestContext(c), userID, c.Param("organization_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

// PATCH /api/v1/organizations/:organization_id
func (h *OrganizationHandler) Update(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.UpdateOrganizationInput
	if !bindJSON(c, &body) {
		return
	}
	org, err := h.svc.Update(requestContext(c), userID, c.Param("organization_id"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

// DELETE /api/v1/organizations/:organization_id
func (h *OrganizationHandler) Delete(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(requestContext(c), userID, c.Param("organization_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Deleted(c, deletedMessage)
}

// GET /api/v1/organizations/:organization_id/settings
func (h *OrganizationHandler) Settings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	settings, err := h.svc.Settings(requestContext(c), userID, c.Param("organization_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// PATCH /api/v1/organizations/:organization_id/settings
func (h *OrganizationHandler) UpdateSettings(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var body services.UpdateSettingsInput
	if !bindJSON(c, &body) {
		return
	}
	settings, err := h.svc.UpdateSettings(requestContext(c), userID, c.Param("organization_id"), body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}

// POST /api/v1/organizations/:organization_id/logo (multipart field "logo")
func (h *OrganizationHandler) UploadLogo(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxLogoUploadBytes+(1<<20))

	header, err := c.FormFile("logo")
	if err != nil {
		response.Error(c, errors.FieldError("logo", "No file was submitted."))
		return
	}
	if header.Size > maxLogoUploadBytes {
		response.Error(c, errors.FieldError("logo", "File too large. Maximum size is 5MB."))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}
	defer file.Close()

	settings, err := h.svc.UploadLogo(requestContext(c), userID, c.Param("organization_id"), services.LogoUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, settings)
}
