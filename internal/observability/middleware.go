package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per admin request, tagged with the serving
// rank. The surface is a handful of probe and scrape endpoints, so the level
// follows the response status and nothing more is recorded.
func RequestLogger(rank int, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}

		event.
			Int("rank", rank).
			Str("method", c.Request.Method).
			Str("path", requestPath(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("admin_request")
	}
}

// RequestMetricsMiddleware records request counts and latency under the
// rank's node label.
func RequestMetricsMiddleware(rank int) gin.HandlerFunc {
	node := "rank-" + strconv.Itoa(rank)
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		RecordHTTPRequest(node, c.Request.Method, requestPath(c), c.Writer.Status(), time.Since(start))
	}
}

// requestPath prefers the route template so path cardinality stays bounded.
func requestPath(c *gin.Context) string {
	if p := c.FullPath(); p != "" {
		return p
	}
	return c.Request.URL.Path
}
