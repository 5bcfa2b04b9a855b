package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/crmhub/internal/database/testutil"
	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/permissions"
	"github.com/charlesng35/crmhub/internal/tenancy"
)

type tenantFixture struct {
	db       *gorm.DB
	resolver *tenancy.Resolver
	owner    *models.User
	staff    *models.User
	outsider *models.User
	org      *models.Organization
}

func newTenantFixture(t *testing.T) *tenantFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	resolver, err := tenancy.NewResolver(db)
	require.NoError(t, err)

	f := &tenantFixture{db: db, resolver: resolver}
	f.owner = &models.User{Email: "owner@example.com", Password: "x"}
	f.staff = &models.User{Email: "staff@example.com", Password: "x"}
	f.outsider = &models.User{Email: "outsider@example.com", Password: "x"}
	for _, u := range []*models.User{f.owner, f.staff, f.outsider} {
		require.NoError(t, db.Create(u).Error)
	}

	f.org = &models.Organization{Name: "Acme", Slug: "acme", OwnerID: f.owner.ID, IsActive: true}
	require.NoError(t, db.Create(f.org).Error)

	role := &models.Role{OrganizationID: f.org.ID, Name: models.RoleStaff}
	require.NoError(t, db.Create(role).Error)
	require.NoError(t, db.Create(&models.Membership{
		OrganizationID:     f.org.ID,
		UserID:             f.staff.ID,
		RoleID:             &role.ID,
		IsActive:           true,
		InvitationAccepted: true,
	}).Error)
	return f
}

// withUser fakes Auth so Tenant sees a caller.
func withUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(CtxUserIDKey, userID)
		c.Next()
	}
}

func TestTenantReadsBodyWithoutConsumingIt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newTenantFixture(t)

	r := gin.New()
	r.POST("/contacts", withUser(f.staff.ID), Tenant(f.resolver), func(c *gin.Context) {
		scope, ok := TenantScope(c)
		if !ok {
			return
		}
		body, _ := io.ReadAll(c.Request.Body)
		c.JSON(http.StatusOK, gin.H{"organization": scope.OrganizationID(), "body": string(body)})
	})

	payload := `{"organization":"` + f.org.ID + `","first_name":"Carol"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/contacts?organization=ignored", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), f.org.ID)
	require.Contains(t, w.Body.String(), `first_name`)
}

func TestTenantRejectsForeignOrganization(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newTenantFixture(t)

	r := gin.New()
	r.GET("/organizations/:organization_id/members", withUser(f.outsider.ID), Tenant(f.resolver), func(c *gin.Context) {
		if _, ok := TenantScope(c); ok {
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizations/"+f.org.ID+"/members", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/organizations/missing/members", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTenantListScopeWithoutReference(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newTenantFixture(t)

	r := gin.New()
	r.GET("/contacts", withUser(f.staff.ID), Tenant(f.resolver), func(c *gin.Context) {
		scope, ok := TenantListScope(c)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, scope.OrganizationIDs)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/contacts", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), f.org.ID)
}

func TestRequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	f := newTenantFixture(t)
	checker, err := permissions.NewChecker(f.db)
	require.NoError(t, err)

	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	serve := func(userID, query string) int {
		r := gin.New()
		if userID != "" {
			r.Use(withUser(userID))
		}
		r.GET("/audit", Tenant(f.resolver), RequirePermission(checker, "audit.view"), handler)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit"+query, nil))
		return w.Code
	}

	require.Equal(t, http.StatusUnauthorized, serve("", ""))
	require.Equal(t, http.StatusBadRequest, serve(f.owner.ID, ""))
	require.Equal(t, http.StatusForbidden, serve(f.staff.ID, "?organization="+f.org.ID))
	require.Equal(t, http.StatusOK, serve(f.owner.ID, "?organization="+f.org.ID))
}
