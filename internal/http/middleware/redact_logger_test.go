package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// syncBuffer is written by server goroutines while the test reads it.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type errSentinel struct{}

func (e errSentinel) Error() string { return "boom" }

func withCapturedLogger(t *testing.T) *syncBuffer {
	t.Helper()
	buf := &syncBuffer{}
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(buf).Level(zerolog.DebugLevel) // plain JSON lines
	return buf
}

func TestRedactor_String(t *testing.T) {
	red := NewRedactor()
	cases := []struct {
		in, want string
	}{
		{"", ""},
		{"mail riya@campus.edu now", "mail [REDACTED:email] now"},
		{"call +91-555-0100", "call +[REDACTED:phone]"},
		{"at 28.7974,77.5369 near gate", "at [REDACTED:geo] near gate"},
		{"query=-33.86, 151.2093", "query=[REDACTED:geo]"},
		{"id 123e4567-e89b-12d3-a456-426614174000", "id [REDACTED:id]"},
		{"ticket 41 closed", "ticket 41 closed"},
	}
	for _, tc := range cases {
		if got := red.String(tc.in); got != tc.want {
			t.Errorf("String(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestRedactor_Query(t *testing.T) {
	red := NewRedactor()
	got := red.Query("lat=28.79&long=77.53&page=2&contact=riya@campus.edu")
	for _, want := range []string{"lat=[REDACTED:geo]", "long=[REDACTED:geo]", "page=2", "contact=[REDACTED:email]"} {
		if !strings.Contains(got, want) {
			t.Fatalf("Query() = %q; missing %q", got, want)
		}
	}
	if strings.Contains(got, "28.79") || strings.Contains(got, "77.53") {
		t.Fatalf("coordinates leaked: %q", got)
	}
	if red.Query("") != "" {
		t.Fatalf("empty query should stay empty")
	}
	// Malformed escapes fall back to text scrubbing.
	if got := red.Query("q=%zz&to=a@b.io"); !strings.Contains(got, "[REDACTED:email]") {
		t.Fatalf("fallback scrub failed: %q", got)
	}
}

func TestRedactor_Headers(t *testing.T) {
	red := NewRedactor(" X-Api-Key ", "")
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Cookie", "sid=topsecret")
	h.Set("X-Api-Key", "shhh")
	h.Set("X-Note", "reach me at a@b.com")
	out := red.Headers(h)
	if out["Authorization"] != "[REDACTED]" || out["Cookie"] != "[REDACTED]" || out["X-Api-Key"] != "[REDACTED]" {
		t.Fatalf("masked headers leaked: %v", out)
	}
	if out["X-Note"] != "reach me at [REDACTED:email]" {
		t.Fatalf("X-Note = %q", out["X-Note"])
	}
}

func TestRedactingLogger_InfoAndRedactions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/users/:id/tickets", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("listing tickets")
		c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/users/12/tickets?lat=28.7974&long=77.5369&email=a@b.com", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set(HeaderUserID, "12")
	req.Header.Set("X-Request-ID", "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	logs := buf.String()
	for _, want := range []string{
		`"level":"info"`,
		`"path":"/users/:id/tickets"`,
		`"request_id":"rid-1"`,
		`"user_id":"12"`,
		`"message":"listing tickets"`,
		`"message":"http_request"`,
		`[REDACTED:geo]`,
		`[REDACTED:email]`,
		`"Authorization":"[REDACTED]"`,
		`"X-Api-Key":"[REDACTED]"`,
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("expected %s in logs:\n%s", want, logs)
		}
	}
	if strings.Contains(logs, "28.7974") || strings.Contains(logs, "shhh") {
		t.Fatalf("sensitive values leaked:\n%s", logs)
	}
}

func TestRedactingLogger_LevelsAndQuietPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	r := gin.New()
	r.Use(RedactingLogger(RedactOptions{QuietPaths: []string{"/health"}}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/warn", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/error", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	r.GET("/gin-err", func(c *gin.Context) {
		_ = c.Error(errSentinel{})
		c.Status(http.StatusBadRequest)
	})

	for _, p := range []string{"/health", "/warn", "/error", "/gin-err"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 log lines, got %d:\n%s", len(lines), buf.String())
	}
	want := []string{`"level":"debug"`, `"level":"warn"`, `"level":"error"`, `"level":"error"`}
	for i, w := range want {
		if !strings.Contains(lines[i], w) {
			t.Fatalf("line %d = %s; want %s", i, lines[i], w)
		}
	}
	if !strings.Contains(lines[3], `"errors":`) || !strings.Contains(lines[0], `"user_id":"anonymous"`) {
		t.Fatalf("unexpected fields:\n%s", buf.String())
	}
}

func TestRedactingLogger_WebsocketSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := withCapturedLogger(t)

	up := websocket.Upgrader{}
	r := gin.New()
	r.Use(RequestID())
	r.Use(RedactingLogger(RedactOptions{}))
	r.GET("/ws/community/:user_id", func(c *gin.Context) {
		conn, err := up.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = conn.ReadMessage() // until the client closes
	})
	r.GET("/ws/refused/:user_id", func(c *gin.Context) { c.Status(http.StatusForbidden) })

	srv := httptest.NewServer(r)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	c, _, err := websocket.DefaultDialer.Dial(base+"/ws/community/7", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = c.Close()

	if _, _, err := websocket.DefaultDialer.Dial(base+"/ws/refused/7", nil); err == nil {
		t.Fatalf("refused route should fail the handshake")
	}

	deadline := time.Now().Add(3 * time.Second)
	for !strings.Contains(buf.String(), `"message":"ws_session"`) || !strings.Contains(buf.String(), `"status":403`) {
		if time.Now().After(deadline) {
			t.Fatalf("no ws_session line:\n%s", buf.String())
		}
		time.Sleep(10 * time.Millisecond)
	}
	logs := buf.String()
	if !strings.Contains(logs, `"user_id":"7"`) || !strings.Contains(logs, `"session":`) {
		t.Fatalf("ws_session fields missing:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"warn"`) {
		t.Fatalf("refused upgrade should log as a warned request:\n%s", logs)
	}
}
