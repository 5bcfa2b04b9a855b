package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/crmhub/pkg/metrics"
)

func TestMetricsLabelsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/contacts/:id", func(c *gin.Context) {
		require.Equal(t, 1.0, testutil.ToFloat64(metrics.RequestsInFlight))
		c.Status(http.StatusOK)
	})

	before := testutil.CollectAndCount(metrics.APILatency)
	for _, path := range []string{"/contacts/1", "/contacts/2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
	for _, path := range []string{"/nope", "/also/nope"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusNotFound, w.Code)
	}

	// One series for the template and one shared by every unmatched path.
	require.Equal(t, before+2, testutil.CollectAndCount(metrics.APILatency))
	require.Zero(t, testutil.ToFloat64(metrics.RequestsInFlight))
}
