package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/monitoring"
	"github.com/charlesng35/crmhub/pkg/response"
)

// MonitoringOptions describes what the summary endpoint can report on.
type MonitoringOptions struct {
	Health          *monitoring.Health
	MetricsEnabled  bool
	MetricsEndpoint string
	Connections     interface{ ActiveConnections() int64 }
}

type MonitoringHandler struct {
	opts MonitoringOptions
}

type monitoringSummary struct {
	monitoring.Summary
	Metrics struct {
		Enabled  bool   `json:"enabled"`
		Endpoint string `json:"endpoint,omitempty"`
	} `json:"metrics"`
	Connections *int64             `json:"websocket_connections,omitempty"`
	Readiness   *monitoring.Report `json:"readiness,omitempty"`
}

func NewMonitoringHandler(opts MonitoringOptions) *MonitoringHandler {
	return &MonitoringHandler{opts: opts}
}

// GET /api/v1/monitoring/summary
func (h *MonitoringHandler) Summary(c *gin.Context) {
	out := monitoringSummary{Summary: monitoring.Snapshot()}
	out.Metrics.Enabled = h.opts.MetricsEnabled
	if h.opts.MetricsEnabled {
		out.Metrics.Endpoint = h.opts.MetricsEndpoint
	}
	if h.opts.Connections != nil {
		n := h.opts.Connections.ActiveConnections()
		out.Connections = &n
	}
	if h.opts.Health != nil {
		report := h.opts.Health.Evaluate(requestContext(c), monitoring.Readiness)
		out.Readiness = &report
	}
	response.Success(c, http.StatusOK, out)
}
