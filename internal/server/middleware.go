package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fleetpass/fleetpass/pkg/telemetry/correlation"
	"github.com/fleetpass/fleetpass/pkg/tenantctx"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	headerRequestID = "X-Request-ID"
	headerTenantID  = "X-Tenant-ID"
)

// RequestID propagates the caller's correlation ID or mints a new one, and
// echoes it back on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		if incoming := c.GetHeader(headerRequestID); incoming != "" {
			ctx = correlation.ContextWithCorrelationID(ctx, incoming)
		}
		ctx, cid := correlation.EnsureCorrelationID(ctx)
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerRequestID, cid)
		c.Next()
	}
}

// TenantContext stashes the calling tenant on the request context when the
// header is present. Resource ownership is still enforced per handler.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := strings.TrimSpace(c.GetHeader(headerTenantID)); raw != "" {
			if id, err := snowflake.ParseString(raw); err == nil {
				ctx := tenantctx.WithTenantID(c.Request.Context(), int64(id))
				c.Request = c.Request.WithContext(ctx)
			}
		}
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", correlation.ExtractCorrelationID(c.Request.Context())),
		}
		if tenantID, ok := tenantctx.TenantIDFromContext(c.Request.Context()); ok {
			fields = append(fields, zap.String("tenant_id", tenantID.String()))
		}
		log.Info("request", fields...)
	}
}
