package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/internal/tenancy"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

const (
	CtxTenantKey = "tenantLookup"

	maxTenantPeekBytes = 1 << 20
)

// Tenant attaches a per-request organization lookup built from the body
// "organization" field, the "organization" query parameter and the
// :organization_id path parameter. Nothing is resolved until a handler asks.
func Tenant(resolver *tenancy.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		ref := tenancy.Reference{
			Body:  peekBodyOrganization(c.Request),
			Query: c.Query("organization"),
			Path:  c.Param("organization_id"),
		}
		c.Set(CtxTenantKey, tenancy.NewLookup(resolver, UserID(c), ref))
		c.Next()
	}
}

// peekBodyOrganization reads the JSON "organization" key and restores the body
// so binding still sees it.
func peekBodyOrganization(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return ""
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "application/json" {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxTenantPeekBytes+1))
	rest := r.Body
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(data), rest), rest}
	if err != nil || len(data) > maxTenantPeekBytes {
		return ""
	}

	var body struct {
		Organization json.RawMessage `json:"organization"`
	}
	if json.Unmarshal(data, &body) != nil || len(body.Organization) == 0 {
		return ""
	}
	var id string
	if json.Unmarshal(body.Organization, &id) != nil {
		return ""
	}
	return id
}

// TenantLookup returns the request's lookup. Routes outside Tenant get an
// empty reference for the authenticated user.
func TenantLookup(c *gin.Context) (*tenancy.Lookup, bool) {
	v, ok := c.Get(CtxTenantKey)
	if !ok {
		return nil, false
	}
	lookup, ok := v.(*tenancy.Lookup)
	return lookup, ok
}

// TenantScope resolves the write scope, writing the error response on failure.
func TenantScope(c *gin.Context) (tenancy.Scope, bool) {
	lookup, ok := TenantLookup(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return tenancy.Scope{}, false
	}
	scope, err := lookup.Scope(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return tenancy.Scope{}, false
	}
	return scope, true
}

// TenantListScope returns the read scope. Unknown references narrow to nothing
// rather than failing.
func TenantListScope(c *gin.Context) (tenancy.Scope, bool) {
	lookup, ok := TenantLookup(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return tenancy.Scope{}, false
	}
	scope, err := lookup.ListScope(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return tenancy.Scope{}, false
	}
	return scope, true
}

// TenantOrganization resolves the referenced organization, which may be nil.
func TenantOrganization(c *gin.Context) (*models.Organization, bool) {
	lookup, ok := TenantLookup(c)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	org, err := lookup.Organization(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return nil, false
	}
	return org, true
}
