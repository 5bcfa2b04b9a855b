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

type TaskHandler struct {
	*ResourceHandler[models.Task, services.TaskInput]
	svc *services.TaskService
	now func() time.Time
}

type completeTaskRequest struct {
	CompletedAt *time.Time `json:"completed_at"`
}

func NewTaskHandler(svc *services.TaskService) *TaskHandler {
	return &TaskHandler{ResourceHandler: NewResourceHandler(svc), svc: svc, now: time.Now}
}

// POST /api/v1/tasks/:id/complete
func (h *TaskHandler) Complete(c *gin.Context) {
	var body completeTaskRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Task, error) {
		return h.svc.Complete(ctx, scope, c.Param("id"), body.CompletedAt)
	})
}

// GET /api/v1/tasks/my-tasks
func (h *TaskHandler) MyTasks(c *gin.Context) {
	scopedList(c, h.svc.MyTasks)
}

// GET /api/v1/tasks/calendar?start=2025-03-01&end=2025-03-31
// Without a range the current month is returned.
func (h *TaskHandler) Calendar(c *gin.Context) {
	start, err := parseTimeQuery(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	end, err := parseTimeQuery(c, "end")
	if err != nil {
		response.Error(c, err)
		return
	}
	now := h.now().UTC()
	if start == nil {
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		start = &first
	}
	if end == nil {
		last := start.AddDate(0, 1, 0)
		end = &last
	}
	q := listQuery(c)
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) ([]services.CalendarEntry, error) {
		return h.svc.Calendar(ctx, scope, *start, *end, q)
	})
}

type EmailHandler struct {
	*ResourceHandler[models.Email, services.EmailInput]
	svc *services.EmailService
}

type sendEmailRequest struct {
	SentAt *time.Time `json:"sent_at"`
}

func NewEmailHandler(svc *services.EmailService) *EmailHandler {
	return &EmailHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// POST /api/v1/emails/compose
func (h *EmailHandler) Compose(c *gin.Context) {
	var body services.EmailInput
	if !bindJSON(c, &body) {
		return
	}
	scope, ok := middleware.TenantScope(c)
	if !ok {
		return
	}
	email, err := h.svc.Compose(requestContext(c), scope, body)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, email)
}

// POST /api/v1/emails/:id/send
func (h *EmailHandler) Send(c *gin.Context) {
	var body sendEmailRequest
	if !bindOptionalJSON(c, &body) {
		return
	}
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.Email, error) {
		return h.svc.Send(ctx, scope, c.Param("id"), body.SentAt)
	})
}

type CampaignHandler struct {
	*ResourceHandler[models.EmailCampaign, services.EmailCampaignInput]
	svc *services.EmailCampaignService
}

func NewCampaignHandler(svc *services.EmailCampaignService) *CampaignHandler {
	return &CampaignHandler{ResourceHandler: NewResourceHandler(svc), svc: svc}
}

// POST /api/v1/email-campaigns/:id/send
func (h *CampaignHandler) Send(c *gin.Context) {
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*models.EmailCampaign, error) {
		return h.svc.Send(ctx, scope, c.Param("id"))
	})
}

// GET /api/v1/email-campaigns/:id/stats
func (h *CampaignHandler) Stats(c *gin.Context) {
	scopedAction(c, http.StatusOK, func(ctx context.Context, scope tenancy.Scope) (*services.CampaignStats, error) {
		return h.svc.Stats(ctx, scope, c.Param("id"))
	})
}
