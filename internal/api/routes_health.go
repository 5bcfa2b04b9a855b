package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/app/maintenance"
	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/internal/monitoring/checks"
)

// maintenanceWindow is how long a daily job may go without a success.
const maintenanceWindow = 26 * time.Hour

var maintenanceWindows = map[string]time.Duration{
	maintenance.JobSessions: 3 * time.Hour,
	maintenance.JobReports:  time.Hour,
	maintenance.JobCache:    3 * time.Hour,
}

// registerHealthChecks wires the dependency checks into the module. Liveness
// only needs the database; readiness adds the optional collaborators.
func registerHealthChecks(deps Dependencies) {
	health := deps.Monitoring.Health()
	if health == nil {
		return
	}

	health.Add(monitoring.Liveness, checks.Database(deps.DB))
	health.Add(monitoring.Readiness,
		checks.Database(deps.DB),
		checks.Maintenance(maintenanceWindow, maintenanceWindows),
	)
	if deps.Redis != nil {
		health.Add(monitoring.Readiness, checks.Redis(deps.Redis))
	}
	if deps.Hub != nil {
		health.Add(monitoring.Readiness, checks.Realtime(deps.Hub))
	}
}

// registerHealthRoutes mounts /health, /health/live and /health/ready at the
// root and under /api. With health checks disabled every path answers 404.
func registerHealthRoutes(r *gin.Engine, enabled bool, health *monitoring.Health) {
	for _, router := range []gin.IRoutes{r, r.Group("/api")} {
		if !enabled || health == nil {
			for _, path := range []string{"/health", "/health/live", "/health/ready"} {
				router.GET(path, healthDisabled)
			}
			continue
		}
		router.GET("/health", healthHandler(health, monitoring.Readiness, false))
		router.GET("/health/live", healthHandler(health, monitoring.Liveness, true))
		router.GET("/health/ready", healthHandler(health, monitoring.Readiness, true))
	}
}

func healthHandler(health *monitoring.Health, kind monitoring.Kind, detailed bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := health.Evaluate(c.Request.Context(), kind)
		status := http.StatusOK
		if !report.Success {
			status = http.StatusServiceUnavailable
		}
		body := gin.H{
			"success":    report.Success,
			"status":     report.Status,
			"checked_at": time.Now().UTC(),
		}
		if detailed {
			body["checks"] = report.Checks
		}
		c.JSON(status, body)
	}
}

func healthDisabled(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"success": false, "status": "disabled"})
}
