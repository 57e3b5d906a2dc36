// Every error leaves through fail as an ErrorResponse with a stable code:
//
//	HTTP/1.1 409 Conflict
//	{ "request_id": "…", "code": "already_closed", "message": "ticket already closed" }
//
// A 500 never shows the client its cause (usually a storage error naming
// tables and columns); the cause goes to the request log instead.

package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/http/middleware"
)

const internalMessage = "internal error"

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID, for matching a report to server logs.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable machine-readable code; see errors.go.
	Code string `json:"code" example:"not_found"`
	// Safe to show to the person using the app.
	Message string `json:"message" example:"ticket not found"`
}

// fail aborts with an ErrorResponse. 5xx responses are logged with the
// request-scoped logger; for a plain 500 msg is logged as the cause and the
// client only sees "internal error".
func fail(c *gin.Context, status int, code, msg string) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("cause", msg).
			Msg("request failed")
		if status == http.StatusInternalServerError {
			msg = internalMessage
		}
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer unmatched routes with the same envelope.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// notModified sets the ETag header and, when the request's If-None-Match
// names it (or is "*"), answers 304 and reports true.
func notModified(c *gin.Context, etag string) bool {
	c.Header("ETag", etag)
	inm := c.GetHeader("If-None-Match")
	if inm == "" {
		return false
	}
	for _, candidate := range strings.Split(inm, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag {
			c.Status(http.StatusNotModified)
			return true
		}
	}
	return false
}
