package httpapi

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request ID in responses.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// requestTiming tags each request with an ID and logs its start, completion
// and failures with elapsed time.
func requestTiming() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := uuid.NewString()[:8]
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)

		start := time.Now()
		route := c.Request.Method + " " + c.Request.URL.Path
		log.Printf("[server] [%s] %s: started", id, route)

		c.Next()

		elapsed := time.Since(start).Seconds()
		status := c.Writer.Status()
		if len(c.Errors) > 0 || status >= 500 {
			log.Printf("[server] [%s] %s: error after %.2fs (%d): %s", id, route, elapsed, status, c.Errors.String())
			return
		}
		log.Printf("[server] [%s] %s: completed in %.2fs (%d)", id, route, elapsed, status)
	}
}
