package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/handlers"
)

func registerCRMRoutes(api *gin.RouterGroup, svc *Services) {
	handlers.NewResourceHandler(svc.Tags).Register(api.Group("/tags"))
	handlers.NewResourceHandler(svc.Activities).Register(api.Group("/activities"))
	handlers.NewResourceHandler(svc.EmailTemplates).Register(api.Group("/email-templates"))
	handlers.NewResourceHandler(svc.CustomFields).Register(api.Group("/custom-fields"))
	handlers.NewResourceHandler(svc.Reports).Register(api.Group("/reports"))
	handlers.NewResourceHandler(svc.ScheduledReports).Register(api.Group("/scheduled-reports"))
	handlers.NewResourceHandler(svc.Webhooks).Register(api.Group("/settings/webhooks"))
	handlers.NewResourceHandler(svc.Layouts).Register(api.Group("/settings/layouts"))
	handlers.NewResourceHandler(svc.IntegrationKeys).Register(api.Group("/integration-keys"))
	handlers.NewResourceHandler(svc.Widgets).Register(api.Group("/dashboard/widgets"))

	companies := handlers.NewCompanyHandler(svc.Companies)
	group := api.Group("/companies")
	companies.Register(group)
	group.GET("/:id/contacts", companies.Contacts)

	contacts := handlers.NewContactHandler(svc.Contacts)
	group = api.Group("/contacts")
	// Static segments first so they are not captured by /:id.
	group.GET("/duplicates", contacts.Duplicates)
	group.POST("/bulk-delete", contacts.BulkDelete)
	group.POST("/bulk-update", contacts.BulkUpdate)
	group.POST("/merge", contacts.Merge)
	contacts.Register(group)
	group.POST("/:id/tags", contacts.AddTags)
	group.DELETE("/:id/tags/:tag_id", contacts.RemoveTag)
	group.GET("/:id/activities", contacts.Activities)
	group.GET("/:id/opportunities", contacts.Opportunities)
	group.GET("/:id/tasks", contacts.Tasks)

	leads := handlers.NewLeadHandler(svc.Leads)
	group = api.Group("/leads")
	group.GET("/stats", leads.Stats)
	leads.Register(group)
	group.PATCH("/:id/status", leads.UpdateStatus)
	group.PATCH("/:id/score", leads.UpdateScore)
	group.POST("/:id/convert", leads.Convert)
	group.GET("/:id/activities", leads.Activities)

	stages := handlers.NewStageHandler(svc.Stages)
	group = api.Group("/opportunity-stages")
	group.POST("/reorder", stages.Reorder)
	stages.Register(group)

	opportunities := handlers.NewOpportunityHandler(svc.Opportunities)
	group = api.Group("/opportunities")
	group.GET("/pipeline", opportunities.Pipeline)
	group.GET("/forecast", opportunities.Forecast)
	opportunities.Register(group)
	group.POST("/:id/mark-won", opportunities.MarkWon)
	group.POST("/:id/mark-lost", opportunities.MarkLost)
	group.POST("/:id/move-stage", opportunities.MoveStage)
	group.POST("/:id/line-items", opportunities.AddLineItem)
	group.PATCH("/:id/line-items/:item_id", opportunities.UpdateLineItem)
	group.DELETE("/:id/line-items/:item_id", opportunities.DeleteLineItem)

	tasks := handlers.NewTaskHandler(svc.Tasks)
	group = api.Group("/tasks")
	group.GET("/my-tasks", tasks.MyTasks)
	group.GET("/calendar", tasks.Calendar)
	tasks.Register(group)
	group.POST("/:id/complete", tasks.Complete)

	emails := handlers.NewEmailHandler(svc.Emails)
	group = api.Group("/emails")
	group.POST("/compose", emails.Compose)
	emails.Register(group)
	group.POST("/:id/send", emails.Send)

	campaigns := handlers.NewCampaignHandler(svc.Campaigns)
	group = api.Group("/email-campaigns")
	campaigns.Register(group)
	group.POST("/:id/send", campaigns.Send)
	group.GET("/:id/stats", campaigns.Stats)
}
