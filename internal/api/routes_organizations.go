package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/handlers"
	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/internal/permissions"
)

type organizationHandlers struct {
	Organizations *handlers.OrganizationHandler
	Members       *handlers.MembershipHandler
	Roles         *handlers.RoleHandler
	Teams         *handlers.TeamHandler
	Invitations   *handlers.InvitationHandler
	Subscription  *handlers.SubscriptionHandler
	Audit         *handlers.AuditHandler
}

func registerOrganizationRoutes(public, protected *gin.RouterGroup, h organizationHandlers, checker *permissions.Checker) {
	invitations := public.Group("/invitations")
	{
		invitations.GET("/:token", h.Invitations.Peek)
		invitations.POST("/:token/accept", h.Invitations.Accept)
	}

	protected.GET("/permissions", h.Roles.Catalog)
	protected.GET("/plans", h.Subscription.Plans)

	orgs := protected.Group("/organizations")
	{
		orgs.GET("", h.Organizations.List)
		orgs.POST("", h.Organizations.Create)
	}

	org := orgs.Group("/:organization_id")
	{
		org.GET("", h.Organizations.Get)
		org.PATCH("", h.Organizations.Update)
		org.DELETE("", h.Organizations.Delete)
		org.GET("/settings", h.Organizations.Settings)
		org.PATCH("/settings", h.Organizations.UpdateSettings)
		org.POST("/logo", h.Organizations.UploadLogo)

		org.GET("/members", h.Members.List)
		org.POST("/members", h.Members.Add)
		org.GET("/members/:id", h.Members.Get)
		org.PATCH("/members/:id", h.Members.Update)
		org.PUT("/members/:id/role", h.Members.UpdateRole)
		org.DELETE("/members/:id", h.Members.Remove)

		org.GET("/roles", h.Roles.List)
		org.POST("/roles", h.Roles.Create)
		org.GET("/roles/:id", h.Roles.Get)
		org.PATCH("/roles/:id", h.Roles.Update)
		org.DELETE("/roles/:id", h.Roles.Delete)
		org.GET("/permissions/me", h.Roles.Mine)

		org.GET("/teams", h.Teams.List)
		org.POST("/teams", h.Teams.Create)
		org.GET("/teams/:id", h.Teams.Get)
		org.PATCH("/teams/:id", h.Teams.Update)
		org.DELETE("/teams/:id", h.Teams.Delete)
		org.POST("/teams/:id/members", h.Teams.AddMember)
		org.DELETE("/teams/:id/members/:membership_id", h.Teams.RemoveMember)

		org.GET("/invitations", h.Invitations.List)
		org.POST("/invitations", h.Invitations.Create)
		org.GET("/invitations/:id", h.Invitations.Get)
		org.POST("/invitations/:id/cancel", h.Invitations.Cancel)
		org.POST("/invitations/:id/resend", h.Invitations.Resend)

		org.GET("/subscription", h.Subscription.Get)
		org.PATCH("/subscription", h.Subscription.Update)
		org.POST("/subscription/upgrade", h.Subscription.Upgrade)
		org.POST("/subscription/cancel", h.Subscription.Cancel)
		org.POST("/subscription/reactivate", h.Subscription.Reactivate)

		org.GET("/audit-logs", middleware.RequirePermission(checker, "audit.view"), h.Audit.List)
	}
}
