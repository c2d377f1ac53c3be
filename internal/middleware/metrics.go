package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kenseikai/dojo-api/internal/service"
)

// Metrics records duration and status per route. The registered route
// pattern is used as the label so path parameters do not explode
// cardinality; unmatched requests fall back to the raw path.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
