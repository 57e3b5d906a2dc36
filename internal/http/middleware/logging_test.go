package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var seen string
	r := gin.New()
	r.Use(RequestID())
	r.GET("/sos", func(c *gin.Context) {
		seen = RequestIDFrom(c)
		c.Status(http.StatusNoContent)
	})

	cases := []struct {
		name, in string
		kept     bool
	}{
		{"absent", "", false},
		{"plain", "abc-123", true},
		{"dotted with colon", "edge.7:Z-REQ-123", true},
		{"whitespace", "has space", false},
		{"json injection", `x"}{"level":"error`, false},
		{"oversized", strings.Repeat("a", 129), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sos", nil)
			if tc.in != "" {
				req.Header.Set(requestIDHeader, tc.in)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			if got == "" || got != seen {
				t.Fatalf("header %q, context %q", got, seen)
			}
			if (got == tc.in) != tc.kept {
				t.Fatalf("id %q for inbound %q; kept=%v", got, tc.in, tc.kept)
			}
		})
	}
}

func TestRecovery_WritesEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{}), Recovery())
	r.GET("/tickets/:id/messages", func(c *gin.Context) { panic("nil room") })

	req := httptest.NewRequest(http.MethodGet, "/tickets/4/messages", nil)
	req.Header.Set(requestIDHeader, "rid-panic")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d; want 500", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	want := map[string]string{"request_id": "rid-panic", "code": "internal_error", "message": "internal error"}
	for k, v := range want {
		if body[k] != v {
			t.Fatalf("%s = %q; want %q", k, body[k], v)
		}
	}
	out := buf.String()
	if !strings.Contains(out, `"message":"panic recovered"`) || !strings.Contains(out, `"path":"/tickets/:id/messages"`) {
		t.Fatalf("panic log missing scoped fields:\n%s", out)
	}
	if strings.Contains(w.Body.String(), "nil room") {
		t.Fatalf("panic value leaked to client")
	}
}

func TestRecovery_AfterWriteKeepsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/areas", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/areas", nil))

	if w.Body.String() != "partial" {
		t.Fatalf("body = %q; want the partial write only", w.Body.String())
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged:\n%s", buf.String())
	}
}

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("global fallback", func(t *testing.T) {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RequestID())
		r.GET("/areas", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("fallback")
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/areas", nil))
		out := buf.String()
		if !strings.Contains(out, `"message":"fallback"`) || strings.Contains(out, `"request_id"`) {
			t.Fatalf("fallback line = %s", out)
		}
	})

	t.Run("request scoped", func(t *testing.T) {
		buf := withCapturedLogger(t)
		r := gin.New()
		r.Use(RequestID(), RedactingLogger(RedactOptions{}))
		r.GET("/ws/community/:user_id", func(c *gin.Context) {
			LoggerFrom(c).Info().Msg("joined")
			c.Status(http.StatusOK)
		})
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ws/community/31", nil))
		out := buf.String()
		for _, want := range []string{`"message":"joined"`, `"request_id"`, `"user_id":"31"`} {
			if !strings.Contains(out, want) {
				t.Fatalf("missing %s in:\n%s", want, out)
			}
		}
	})
}

func Test_truncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"abcdefgh", 5, "abcde…"},
		{"abc", 0, "abc"},
		{"abc", -1, "abc"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.max); got != tc.want {
			t.Errorf("truncate(%q, %d) = %q; want %q", tc.in, tc.max, got, tc.want)
		}
	}
}
