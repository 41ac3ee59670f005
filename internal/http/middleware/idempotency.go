package middleware

import (
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client-chosen replay token on
// message submissions.
const HeaderIdempotencyKey = "Idempotency-Key"

const ctxKeyIdempotency = "idem.key"

// Keys are opaque client tokens; UUIDs fit comfortably.
var idempotencyKeyRE = regexp.MustCompile(`^[A-Za-z0-9_.:-]{1,128}$`)

// IdempotencyValidator rejects malformed Idempotency-Key headers up
// front and stashes well-formed ones for the handler. Requests without
// the header pass through untouched.
func IdempotencyValidator() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if !idempotencyKeyRE.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":      "VALIDATION_ERROR",
				"message":    "Idempotency-Key must be 1-128 characters of [A-Za-z0-9_.:-]",
				"statusCode": http.StatusBadRequest,
				"timestamp":  time.Now().UTC(),
			})
			return
		}
		c.Set(ctxKeyIdempotency, key)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator, or "" when the request carried none.
func GetIdempotencyKey(c *gin.Context) string {
	if v, ok := c.Get(ctxKeyIdempotency); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
