package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/course-enrollment-api/pkg/middleware/requestid"
)

// Audit logs an "audit" entry for every admin mutation that reaches a handler.
// Read-only methods are skipped.
func Audit(logger *zap.Logger, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		actor := "anonymous"
		if claims, ok := CurrentAdmin(c); ok {
			actor = claims.Email
		}
		fields := []zap.Field{
			zap.String("actor", actor),
			zap.String("resource", resource),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("resource_id", id))
		}
		if reqID := requestid.Value(c); reqID != "" {
			fields = append(fields, zap.String("request_id", reqID))
		}
		if c.Writer.Status() >= 400 {
			logger.Warn("audit", fields...)
			return
		}
		logger.Info("audit", fields...)
	}
}
