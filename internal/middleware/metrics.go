package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pajalhq/pajal-api/internal/service"
)

// routePath returns the matched route template so metrics stay
// low-cardinality; unmatched requests fall back to the raw path.
func routePath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}

// Metrics records request count and latency per method, route and status.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metricsSvc.ObserveHTTPRequest(c.Request.Method, routePath(c), c.Writer.Status(), time.Since(start))
	}
}
