package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/readership/internal/infrastructure/observability/metrics"
	"github.com/AtRiskMedia/readership/internal/infrastructure/security"
)

// RequestIDHeader carries the request correlation id.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates or mints a request id and stores it on the request
// context for the channeled logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = security.GenerateULID()
		}
		c.Header(RequestIDHeader, id)
		c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// RequestMetrics records request counts and latency by route template.
func RequestMetrics(logger *logging.ChanneledLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)
		status := c.Writer.Status()
		metrics.RecordHTTPRequest(route, c.Request.Method, status, elapsed)

		log := logger.WithContext(logging.ChannelHTTP, c.Request.Context())
		if status >= 500 {
			log.Error("Request failed", "method", c.Request.Method, "route", route, "status", status, "duration", elapsed)
		} else {
			log.Debug("Request handled", "method", c.Request.Method, "route", route, "status", status, "duration", elapsed)
		}
	}
}
