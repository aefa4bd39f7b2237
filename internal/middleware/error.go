package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// ErrorLogger logs errors attached with c.Error after the handler ran.
// Internal causes are logged at error level since the client only saw a
// generic message; everything else is expected traffic and goes to debug.
func ErrorLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		for _, e := range c.Errors {
			code := errors.CodeOf(e.Err)
			fields := []interface{}{
				"request_id", c.GetString(ContextRequestID),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"code", code.String(),
			}
			if code == errors.ErrInternal {
				log.Error(e.Err, "Request failed", fields...)
				continue
			}
			log.Debug("Request rejected", append(fields, "error", e.Err.Error())...)
		}
	}
}
