package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
)

var internalErrorBody = httputil.Response{
	Status:  "error",
	Code:    string(apperrors.CodeInternal),
	Message: "Internal server error",
}

// Recovery turns a handler panic into a 500 envelope. A panic after the
// response was written only gets logged.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}

			log.Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str("request_id", c.GetString(ContextRequestID)).
				Str("route", c.FullPath()).
				Str("method", c.Request.Method).
				Msg("Recovered from handler panic")

			if c.Writer.Written() {
				c.Abort()
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, internalErrorBody)
		}()
		c.Next()
	}
}
