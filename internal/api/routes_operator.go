package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/handlers"
	"github.com/charlesng35/crmhub/internal/middleware"
)

// registerOperatorRoutes mounts the superuser-only diagnostics.
func registerOperatorRoutes(protected *gin.RouterGroup, security *handlers.SecurityHandler, monitor *handlers.MonitoringHandler) {
	ops := protected.Group("", middleware.RequireSuperuser())
	ops.GET("/security/audit", security.Audit)
	ops.GET("/monitoring/summary", monitor.Summary)
}
