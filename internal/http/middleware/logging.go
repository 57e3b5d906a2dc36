// Package middleware holds the gin middleware shared by every route: request
// correlation, panic recovery, redacted access logging, metrics, idempotency
// keys, rate limiting and security headers.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDHeader = "X-Request-ID"

	ctxRequestID = "requestID"
	ctxLogger    = "logger"

	// maxQueryLogLength bounds the raw query string written to the access log.
	maxQueryLogLength = 2048
)

// Inbound ids are echoed into logs and error bodies, so only this shape is
// trusted.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID reuses a well-formed X-Request-ID or mints a UUID, stores it on
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(ctxRequestID, rid)
		c.Header(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the id RequestID stored, or "".
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(ctxRequestID)
}

// abortError ends the chain with the JSON error envelope the handlers use.
func abortError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get(requestIDHeader),
		"code":       code,
		"message":    msg,
	})
}

// Recovery converts a panic into a logged 500. If the handler already wrote
// a response, or hijacked the connection for a websocket, only the status is
// recorded; the socket pumps own the connection from then on.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", p).
				Bytes("stack", debug.Stack()).
				Str("request_id", RequestIDFrom(c)).
				Msg("panic recovered")

			if c.Writer.Written() || c.IsWebsocket() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortError(c, http.StatusInternalServerError, "internal_error", "internal error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger RedactingLogger scoped to this request, or a
// copy of the global logger when none is attached.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(ctxLogger).(*zerolog.Logger); ok {
		return lg
	}
	l := log.Logger
	return &l
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
