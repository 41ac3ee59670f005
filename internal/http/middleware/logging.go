// Package middleware provides the HTTP cross-cutting layer: request
// identity, structured access logs, panic recovery, metrics, rate
// limiting and idempotency-key validation.
package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderRequestID is echoed back to clients so a failed call can be
	// correlated with the server logs.
	HeaderRequestID = "X-Request-ID"

	ctxKeyRequestID = "req.id"
	ctxKeyLogger    = "req.logger"
)

// RequestID assigns a request id to every request, reusing the caller's
// X-Request-ID when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(ctxKeyRequestID, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// GetRequestID returns the request id assigned by RequestID, or "" when
// the middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Logger attaches a request-scoped zerolog logger to the context and
// emits one access log line per request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		l := log.With().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Logger()
		c.Set(ctxKeyLogger, l)

		c.Next()

		dur := time.Since(start)
		status := c.Writer.Status()

		evt := l.Info()
		switch {
		case status >= 500:
			evt = l.Error()
		case status >= 400:
			evt = l.Warn()
		}
		evt.
			Int("status", status).
			Dur("duration", dur).
			Int("bytes", c.Writer.Size()).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// LoggerFrom returns the request-scoped logger set by Logger, falling
// back to the global logger.
func LoggerFrom(c *gin.Context) zerolog.Logger {
	if v, ok := c.Get(ctxKeyLogger); ok {
		if l, ok := v.(zerolog.Logger); ok {
			return l
		}
	}
	return log.Logger
}

// Recovery converts panics into a 500 error response instead of
// tearing down the connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l := LoggerFrom(c)
				l.Error().
					Interface("panic", r).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "INTERNAL_SERVER_ERROR",
					"message":    "An internal server error occurred",
					"statusCode": http.StatusInternalServerError,
					"timestamp":  time.Now().UTC(),
				})
			}
		}()
		c.Next()
	}
}
