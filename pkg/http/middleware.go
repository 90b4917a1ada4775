package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"guardpost/pkg/errors"
	"guardpost/pkg/logging"
	"guardpost/pkg/metrics"
)

// RequestLogger logs one line per request with method, path, status and latency
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if status >= 500 {
			logging.Errorf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		} else {
			logging.Infof("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, status, latency)
		}
	}
}

// Metrics records request counts and latency per route. The route template
// (not the raw path) is the label, so /accounts/:id stays one series.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Recovery converts panics into structured 500 responses
func Recovery(errHandler *errors.Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				errHandler.HandlePanic(c, r)
			}
		}()
		c.Next()
	}
}
