package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/permissions"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

// RequirePermission checks that the caller holds permissionID in the
// organization the request references. Routes using it must run after Tenant;
// a request that names no organization is rejected.
func RequirePermission(checker *permissions.Checker, permissionID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := UserID(c)
		if userID == "" {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		org, ok := TenantOrganization(c)
		if !ok {
			c.Abort()
			return
		}
		if org == nil {
			response.Abort(c, errors.FieldError("organization", "organization is required"))
			return
		}
		allowed, err := checker.Check(c.Request.Context(), org.ID, userID, permissionID)
		if err != nil {
			response.Abort(c, errors.ErrInternalServer.WithInternal(err))
			return
		}
		if !allowed {
			response.Abort(c, errors.NewPermissionDenied("missing permission "+permissionID))
			return
		}
		c.Next()
	}
}

// RequireSuperuser admits only tokens minted for superusers.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok || claims == nil {
			response.Abort(c, errors.ErrUnauthorized)
			return
		}
		if !claims.Superuser {
			response.Abort(c, errors.NewPermissionDenied("superuser access required"))
			return
		}
		c.Next()
	}
}
