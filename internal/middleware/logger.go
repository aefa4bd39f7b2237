package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// Logger logs every request once it has been served. Bodies are never
// logged; they carry patient data.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Zerolog().With().
			Str("request_id", c.GetString(ContextRequestID)).
			Str("client_ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("latency", latency).
			Str("user_agent", c.Request.UserAgent())
		if actor, ok := Actor(c); ok {
			event = event.Str("actor_id", actor.ID.String()).Str("actor_role", string(actor.Role))
		}
		reqLog := event.Logger()

		// Log based on status code
		switch {
		case statusCode >= 500:
			reqLog.Error().Msg("Server error")
		case statusCode >= 400:
			reqLog.Warn().Msg("Client error")
		default:
			reqLog.Info().Msg("Request processed")
		}
	}
}
