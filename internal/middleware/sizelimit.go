package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/httputil"
)

// DefaultMaxBodySize is generous for booking requests, which are a few
// hundred bytes.
const DefaultMaxBodySize int64 = 64 << 10

// SizeLimit rejects bodies declared larger than maxBytes and caps the
// reader for bodies that lie about their length.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			httputil.RespondWithError(c, errors.NewInvalidInput(
				fmt.Sprintf("request body exceeds %d bytes", maxBytes), nil))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
