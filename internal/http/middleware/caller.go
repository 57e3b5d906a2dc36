package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderUserID carries the caller's numeric user id. There is no auth layer;
// clients identify themselves with it.
const HeaderUserID = "X-User-ID"

const anonymousCaller = "anonymous"

// userIDFromCtx returns the "userID" context value when an upstream
// middleware set one, else the trimmed X-User-ID header, else "anonymous".
func userIDFromCtx(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader(HeaderUserID)); h != "" {
			return h
		}
	}
	return anonymousCaller
}

// callerOf also accepts a :user_id route parameter, which is how websocket
// clients identify themselves.
func callerOf(c *gin.Context) string {
	if uid := userIDFromCtx(c); uid != anonymousCaller {
		return uid
	}
	if p := c.Param("user_id"); p != "" {
		return p
	}
	return anonymousCaller
}
