package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/pkg/httputil"
)

const defaultRequestTimeout = 30 * time.Second

type TimeoutConfig struct {
	// Duration of zero or less falls back to 30s
	Duration time.Duration
}

var timeoutBody = httputil.Response{
	Status:  "error",
	Code:    "Timeout",
	Message: "Request timeout",
}

// Timeout bounds the request context. Handlers observe the deadline through
// their context; if one gives up without writing, the client gets a 504.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	d := config.Duration
	if d <= 0 {
		d = defaultRequestTimeout
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusGatewayTimeout, timeoutBody)
		}
	}
}
