package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/internal/middleware"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

// requestContext is the request's context, or Background for contexts built
// by hand in tests.
func requestContext(c *gin.Context) context.Context {
	if c != nil && c.Request != nil {
		return c.Request.Context()
	}
	return context.Background()
}

// currentUser reads the caller set by the Auth middleware. With no caller it
// answers 401 and returns false.
func currentUser(c *gin.Context) (string, bool) {
	if id := middleware.UserID(c); id != "" {
		return id, true
	}
	response.Error(c, errors.ErrUnauthorized)
	return "", false
}

// sessionMetadata captures where a login came from.
func sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	return iauth.SessionMetadata{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
