// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all
// endpoints. Success responses share one envelope ({"success":true,
// "data":…}) and error responses share another ({"error","message",
// "statusCode","timestamp"}), making the API predictable and
// machine-friendly. `fail()` additionally centralizes error logging so 5xx
// responses always hit the structured log with request context.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "error": "SESSION_NOT_FOUND",
//	  "message": "Session not found",
//	  "statusCode": 404,
//	  "timestamp": "2026-08-30T10:15:04Z"
//	}
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/probelab/go-interview-backend/internal/http/middleware"
)

// Envelope is the standard success wrapper returned by all endpoints.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the standard error body returned by all endpoints.
//
// Fields:
//   - Error: stable, machine-readable code (see errors.go constants).
//   - Message: human-readable description, safe for display to users.
//   - StatusCode: the HTTP status, repeated in the body for clients that
//     lose the transport status (message queues, log pipelines).
//   - Timestamp: server time the error was produced, RFC 3339 UTC.
type ErrorResponse struct {
	Error      string    `json:"error" example:"SESSION_NOT_FOUND"`
	Message    string    `json:"message" example:"Session not found"`
	StatusCode int       `json:"statusCode" example:"404"`
	Timestamp  time.Time `json:"timestamp"`
}

// ok writes a success envelope with the given HTTP status code.
func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Envelope{Success: true, Data: data})
}

// fail aborts the request with a structured error and logs server-side errors.
//
// Server errors (>=500) are logged using the request-scoped logger from
// middleware so they carry the correlation id.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		Error:      code,
		Message:    msg,
		StatusCode: status,
		Timestamp:  time.Now().UTC(),
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// noContent writes an HTTP 204 No Content response.
//
// Used when the operation succeeds but there is no response body.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error bodies without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }
