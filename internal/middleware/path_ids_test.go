package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestPathIDsRejectsMalformedIdentifiers(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	group := r.Group("/api", PathIDs())
	group.GET("/contacts/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.GET("/organizations/:organization_id/members", func(c *gin.Context) { c.Status(http.StatusOK) })
	group.GET("/reports/:name", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	w := serve("/api/contacts/abc")
	require.Equal(t, http.StatusNotFound, w.Code)
	payload := decodeEnvelope(t, w)
	require.Equal(t, "NOT_FOUND", payload.Error.Code)

	w = serve("/api/organizations/acme/members")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Organization not found.", decodeEnvelope(t, w).Error.Message)

	require.Equal(t, http.StatusNotFound, serve("/api/contacts/"+uuid.NewString()[:35]).Code)
	require.Equal(t, http.StatusOK, serve("/api/contacts/"+uuid.NewString()).Code)
	require.Equal(t, http.StatusOK, serve("/api/organizations/"+uuid.NewString()+"/members").Code)
	require.Equal(t, http.StatusOK, serve("/api/reports/pipeline").Code)
}
