// This file implements RedactingLogger, the access logger for the incident
// API. Requests here routinely carry a person's location and contact details,
// so nothing identifying reaches the logs in clear text:
//
//   - bodies are never logged
//   - coordinates (lat/long query params and "lat,long" pairs) become [REDACTED:geo]
//   - emails, phone numbers and UUID-like ids are replaced with typed markers
//   - Authorization, Cookie, Set-Cookie and configured headers are masked
//
// Websocket upgrades are long-lived: the handler returns only when the socket
// closes, so a successful upgrade is logged once as "ws_session" with the
// session duration instead of a request latency.
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskHeaders: []string{"X-Api-Key"},
//	    QuietPaths:  []string{"/health", "/metrics"},
//	}))

package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RedactOptions configures RedactingLogger.
type RedactOptions struct {
	// MaskHeaders are extra header names (case-insensitive) whose values are
	// replaced with "[REDACTED]".
	MaskHeaders []string
	// QuietPaths are logged at debug level (health checks, scrapes).
	QuietPaths []string
}

// Redactor scrubs identifying values from free text, query strings and
// headers.
type Redactor struct {
	maskHeaders map[string]struct{}
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Two decimal degrees separated by a comma, as in map links.
	coordPairRE = regexp.MustCompile(`-?\d{1,3}\.\d+\s*,\s*-?\d{1,3}\.\d+`)
	// Digits only, so the hex groups of a UUID never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// geoParams are query parameters that carry a coordinate on their own.
var geoParams = map[string]struct{}{
	"lat": {}, "latitude": {}, "long": {}, "lng": {}, "lon": {}, "longitude": {},
}

// NewRedactor returns a Redactor masking the default sensitive headers plus
// extra.
func NewRedactor(extra ...string) *Redactor {
	m := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range extra {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			m[h] = struct{}{}
		}
	}
	return &Redactor{maskHeaders: m}
}

// String scrubs s. UUIDs go first so the loose phone pattern cannot eat their
// digit groups; coordinates go before phones for the same reason.
func (r *Redactor) String(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	s = coordPairRE.ReplaceAllString(s, "[REDACTED:geo]")
	s = phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
	return s
}

// Query scrubs a raw query string. Coordinate parameters are masked whole;
// other values go through String. Unparseable input is scrubbed as text.
func (r *Redactor) Query(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return r.String(raw)
	}
	for k, vv := range vals {
		_, geo := geoParams[strings.ToLower(k)]
		for i := range vv {
			if geo {
				vv[i] = "[REDACTED:geo]"
			} else {
				vv[i] = r.String(vv[i])
			}
		}
	}
	// Encode sorts keys, which keeps log lines stable.
	out, _ := url.QueryUnescape(vals.Encode())
	return truncate(out, maxQueryLogLength)
}

// Headers returns a flattened, scrubbed copy of h.
func (r *Redactor) Headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, masked := r.maskHeaders[strings.ToLower(k)]; masked {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.String(strings.Join(vv, ", "))
	}
	return out
}

// RedactingLogger returns the access-log middleware.
//
// Before the handler runs it stores a request-scoped logger (request_id,
// user_id, method, route) for LoggerFrom. Afterwards it emits one line:
// info for success, warn for 4xx, error for 5xx or when handlers recorded
// gin errors, debug for QuietPaths.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts.MaskHeaders...)
	quiet := make(map[string]struct{}, len(opts.QuietPaths))
	for _, p := range opts.QuietPaths {
		quiet[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		reqID := RequestIDFrom(c)
		if reqID == "" {
			reqID = c.Writer.Header().Get(requestIDHeader)
		}

		scoped := log.With().
			Str("request_id", reqID).
			Str("user_id", callerOf(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Logger()
		c.Set(ctxLogger, &scoped)

		query := red.Query(c.Request.URL.RawQuery)
		headers := red.Headers(c.Request.Header)
		upgrade := c.IsWebsocket()

		c.Next()

		elapsed := time.Since(start)
		status := c.Writer.Status()

		// A hijacked connection never gets a status from gin; a refused
		// upgrade is an ordinary 4xx response.
		if upgrade && status < http.StatusBadRequest {
			scoped.Info().
				Str("remote_ip", c.ClientIP()).
				Dur("session", elapsed).
				Msg("ws_session")
			return
		}

		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			ev = scoped.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", red.String(c.Errors.String()))
			}
		case status >= http.StatusBadRequest:
			ev = scoped.Warn()
		default:
			if _, ok := quiet[path]; ok {
				ev = scoped.Debug()
			} else {
				ev = scoped.Info()
			}
		}

		ev.
			Str("query", query).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", elapsed).
			Interface("headers", headers).
			Msg("http_request")
	}
}
