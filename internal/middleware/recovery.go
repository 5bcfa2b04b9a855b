package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/charlesng35/crmhub/pkg/errors"
	"github.com/charlesng35/crmhub/pkg/logger"
	"github.com/charlesng35/crmhub/pkg/response"
)

// Recovery turns a handler panic into the standard 500 envelope. A panic
// with http.ErrAbortHandler is the handler asking to drop the connection and
// is passed through untouched.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			logger.WithModule("http").Error("handler panicked",
				zap.String("method", c.Request.Method),
				zap.String("route", routeTemplate(c)),
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.String("panic", fmt.Sprint(rec)),
				zap.Stack("stack"),
			)
			if c.Writer.Written() {
				// Too late for an envelope; cut the response short.
				c.Abort()
				return
			}
			response.Abort(c, apperrors.ErrInternalServer)
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with a NOT_FOUND envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, apperrors.NewNotFound(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}
