package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/crmhub/pkg/logger"
)

// Logger writes one access line per request at a level picked by status:
// 5xx error, 4xx warn, the rest info. Paths in quiet log at debug so
// health checks do not flood the output.
func Logger(quiet ...string) gin.HandlerFunc {
	muted := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		muted[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		case muted[c.Request.URL.Path]:
			level = zapcore.DebugLevel
		}

		log := logger.WithModule("http")
		entry := log.Check(level, "request")
		if entry == nil {
			return
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", routeTemplate(c)),
			zap.Int("status", status),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.String("request_id", c.GetString(CtxRequestIDKey)),
		}
		if uid := UserID(c); uid != "" {
			fields = append(fields, zap.String("user_id", uid))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.String("errors", errs.String()))
		}
		entry.Write(fields...)
	}
}
