package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/carscout/metrics"
)

// Metrics counts handled requests by method, route and status.
// Unmatched routes are recorded as "unmatched" to bound label cardinality.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Inc()
	}
}
