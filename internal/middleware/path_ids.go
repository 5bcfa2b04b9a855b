package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/models"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

// PathIDs answers NOT_FOUND when an ":id" or ":<name>_id" path parameter is
// not a UUID, before any handler queries with it.
func PathIDs() gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, p := range c.Params {
			if p.Key != "id" && !strings.HasSuffix(p.Key, "_id") {
				continue
			}
			if models.ValidID(p.Value) {
				continue
			}
			if p.Key == "organization_id" {
				response.Abort(c, errors.NewNotFound("Organization not found."))
			} else {
				response.Abort(c, errors.NewNotFound("Not found."))
			}
			return
		}
		c.Next()
	}
}
