package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	corsAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	corsMaxAge       = 10 * 60
)

// corsPolicy holds the normalised allow-list. An empty list or a "*" entry
// admits any origin.
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func newCORSPolicy(allowed []string) corsPolicy {
	p := corsPolicy{any: len(allowed) == 0, origins: map[string]bool{}}
	for _, origin := range allowed {
		switch origin = strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/")); origin {
		case "":
		case "*":
			p.any = true
		default:
			p.origins[origin] = true
		}
	}
	return p
}

// allowOrigin is the Access-Control-Allow-Origin value for origin, or "".
func (p corsPolicy) allowOrigin(origin string) string {
	switch {
	case p.any:
		return "*"
	case origin != "" && p.origins[strings.ToLower(origin)]:
		return origin
	}
	return ""
}

// CORS answers preflight requests with 204 and decorates every response for
// browser clients on the allowed origins.
func CORS(allowedOrigins ...string) gin.HandlerFunc {
	policy := newCORSPolicy(allowedOrigins)
	maxAge := strconv.Itoa(corsMaxAge)

	return func(c *gin.Context) {
		h := c.Writer.Header()
		if allowed := policy.allowOrigin(c.GetHeader("Origin")); allowed != "" {
			h.Set("Access-Control-Allow-Origin", allowed)
		}
		if !policy.any {
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", HeaderRequestID)

		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		h.Set("Access-Control-Max-Age", maxAge)
		c.AbortWithStatus(http.StatusNoContent)
	}
}
