package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/crmhub/internal/auditctx"
	iauth "github.com/charlesng35/crmhub/internal/auth"
	"github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"

	bearerPrefix = "bearer "
)

// SessionChecker reports whether the session behind an access token is still live.
type SessionChecker interface {
	IsActive(ctx context.Context, sessionID string) (bool, error)
}

// Auth admits requests carrying a valid access token whose session, when
// sessions is non-nil, has not been revoked. It stores the claims on the
// gin context and the caller on the request context for auditing.
func Auth(jwt *iauth.JWTService, sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c, jwt, sessions)
		if err != nil {
			if err == errors.ErrUnauthorized {
				c.Header("WWW-Authenticate", "Bearer")
			}
			response.Abort(c, err)
			return
		}

		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}
		c.Request = c.Request.WithContext(auditctx.WithActor(c.Request.Context(), auditctx.Actor{
			UserID:    claims.UserID,
			Email:     claims.Email,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: c.GetString(CtxRequestIDKey),
		}))
		c.Next()
	}
}

func authenticate(c *gin.Context, jwt *iauth.JWTService, sessions SessionChecker) (*iauth.Claims, error) {
	token := bearerToken(c)
	if token == "" {
		return nil, errors.ErrUnauthorized
	}
	claims, err := jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, errors.ErrUnauthorized
	}
	if sessions == nil || claims.SessionID == "" {
		return claims, nil
	}
	active, err := sessions.IsActive(c.Request.Context(), claims.SessionID)
	switch {
	case err != nil:
		return nil, errors.ErrInternalServer.WithInternal(err)
	case !active:
		return nil, errors.ErrUnauthorized
	}
	return claims, nil
}

// bearerToken reads the Authorization header. Browsers cannot set headers on
// a websocket handshake, so upgrades may pass the token as ?token= instead.
func bearerToken(c *gin.Context) string {
	if authz := c.GetHeader("Authorization"); len(authz) > len(bearerPrefix) &&
		strings.EqualFold(authz[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(authz[len(bearerPrefix):])
	}
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return strings.TrimSpace(c.Query("token"))
	}
	return ""
}

// UserID returns the authenticated caller, or "" outside Auth.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

func Claims(c *gin.Context) (*iauth.Claims, bool) {
	claims, ok := c.Value(CtxClaimsKey).(*iauth.Claims)
	return claims, ok
}
