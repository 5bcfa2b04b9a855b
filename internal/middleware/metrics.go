package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/pkg/metrics"
)

// unmatchedRoute labels requests that did not hit a registered route, so
// probing random paths cannot grow the latency series without bound.
const unmatchedRoute = "unmatched"

// Metrics observes request latency per method, route template and status,
// and tracks how many requests are being served right now.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics.RequestsInFlight.Inc()
		started := time.Now()
		defer func() {
			metrics.RequestsInFlight.Dec()
			metrics.APILatency.
				WithLabelValues(c.Request.Method, routeTemplate(c), strconv.Itoa(c.Writer.Status())).
				Observe(time.Since(started).Seconds())
		}()
		c.Next()
	}
}

func routeTemplate(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}
