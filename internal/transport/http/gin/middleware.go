package httpgin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mkravets/tickethub/internal/metrics"
)

const (
	ctxTenantID = "tenant_id"
	ctxStaffID  = "staff_id"
)

func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}

		c.Writer.Header().Set("X-Request-ID", reqID)
		c.Set("request_id", reqID)

		c.Next()
	}
}

func CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{
			"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS",
		},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-Requested-With",
			"X-Request-ID",
			"X-Tenant-ID",
			"X-Staff-ID",
			"Idempotency-Key",
			"If-None-Match",
		},
		ExposeHeaders: []string{
			"X-Request-ID",
			"ETag",
			"Cache-Control",
		},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	return cors.New(cfg)
}

func LoggingMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		reqID, _ := c.Get("request_id")

		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.String("ua", c.Request.UserAgent()),
			slog.Any("request_id", reqID),
			slog.Duration("latency", latency),
			slog.Int("bytes_out", c.Writer.Size()),
		}

		// convert []slog.Attr to []any for slog.Group variadic parameter
		anyAttrs := make([]any, len(attrs))
		for i := range attrs {
			anyAttrs[i] = attrs[i]
		}

		if len(c.Errors) > 0 {
			logger.Error("http", slog.Group("http", anyAttrs...))
		} else {
			logger.Info("http", slog.Group("http", anyAttrs...))
		}
	}
}

// MetricsMiddleware records request latency by route template, so
// /staff/orders/:id stays one series regardless of the concrete id.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		metrics.HTTPDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// StaffAuthMiddleware reads the staff identity established by the upstream
// gateway. Requests without both headers never reach staff handlers.
func StaffAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID, err := uuid.Parse(c.GetHeader("X-Tenant-ID"))
		if err != nil {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				ErrorResponse{Error: "missing or invalid X-Tenant-ID"},
			)
			return
		}

		staffID, err := uuid.Parse(c.GetHeader("X-Staff-ID"))
		if err != nil {
			c.AbortWithStatusJSON(
				http.StatusUnauthorized,
				ErrorResponse{Error: "missing or invalid X-Staff-ID"},
			)
			return
		}

		c.Set(ctxTenantID, tenantID)
		c.Set(ctxStaffID, staffID)

		c.Next()
	}
}

func staffFromContext(c *gin.Context) (tenantID, staffID uuid.UUID, ok bool) {
	t, okT := c.Get(ctxTenantID)
	s, okS := c.Get(ctxStaffID)
	if !okT || !okS {
		return uuid.Nil, uuid.Nil, false
	}

	tenantID, okT = t.(uuid.UUID)
	staffID, okS = s.(uuid.UUID)

	return tenantID, staffID, okT && okS
}
