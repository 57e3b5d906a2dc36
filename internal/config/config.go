// Package config loads the incident hub's settings from the environment.
//
// Every variable has a default. A variable that is set but cannot be parsed
// is an error rather than a silent fallback: an operator who writes
// CLUSTER_THRESHOLD_KM=0,2 should learn about it at boot, not from a map
// that never clusters. Load reports every problem at once.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists the browser origins allowed to call the API. Empty allows
// any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig controls HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// RealtimeConfig tunes websocket sessions and chat message limits.
type RealtimeConfig struct {
	SendBuffer      int           // WS_SEND_BUFFER, queued frames per connection
	MaxMessageBytes int64         // WS_MAX_MESSAGE_BYTES, inbound frame cap
	WriteWait       time.Duration // WS_WRITE_WAIT
	PongWait        time.Duration // WS_PONG_WAIT
	MaxMessageRunes int           // MAX_MESSAGE_RUNES, 0 disables
}

// OTELConfig controls trace export.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT, host:port
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0,1]
}

// Config is the full process configuration.
type Config struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64 // request body cap for the JSON API
	GinMode           string
	ShutdownTimeout   time.Duration

	LogLevel       string
	LogPretty      bool
	SwaggerEnabled bool
	APIBasePath    string

	DBPath             string
	ClusterThresholdKm float64

	Realtime RealtimeConfig

	RateRPS   float64
	RateBurst int

	CORS     CORSConfig
	Security SecurityConfig

	IdempotencyTTL        time.Duration
	IdempotencyPurgeEvery time.Duration

	OTEL OTELConfig
}

// MustLoad is Load for main; it panics on error.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the environment, applies defaults and validates the result.
// The returned error joins every parse and range failure.
func Load() (Config, error) {
	e := &env{}
	cfg := Config{
		Port:              e.str("PORT", "8080"),
		ReadTimeout:       e.dur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: e.dur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      e.dur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       e.dur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    e.int("MAX_HEADER_BYTES", 1<<20),
		MaxBodyBytes:      int64(e.int("MAX_BODY_BYTES", 1<<20)),
		GinMode:           strings.ToLower(e.str("GIN_MODE", "release")),
		ShutdownTimeout:   e.dur("SHUTDOWN_TIMEOUT", 10*time.Second),

		LogLevel:       strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogPretty:      e.bool("LOG_PRETTY", false),
		SwaggerEnabled: e.bool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(e.str("API_BASE_PATH", "/api/v1")),

		DBPath:             e.str("DB_PATH", "incidents.db"),
		ClusterThresholdKm: e.float("CLUSTER_THRESHOLD_KM", 0.2),

		Realtime: RealtimeConfig{
			SendBuffer:      e.int("WS_SEND_BUFFER", 256),
			MaxMessageBytes: int64(e.int("WS_MAX_MESSAGE_BYTES", 8192)),
			WriteWait:       e.dur("WS_WRITE_WAIT", 10*time.Second),
			PongWait:        e.dur("WS_PONG_WAIT", 60*time.Second),
			MaxMessageRunes: e.int("MAX_MESSAGE_RUNES", 2000),
		},

		RateRPS:   e.float("RATE_RPS", 5),
		RateBurst: e.int("RATE_BURST", 10),

		CORS: CORSConfig{AllowedOrigins: splitCSV(e.str("CORS_ALLOWED_ORIGINS", ""))},
		Security: SecurityConfig{
			EnableHSTS: e.bool("ENABLE_HSTS", false),
			HSTSMaxAge: e.dur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		IdempotencyTTL:        e.dur("IDEMPOTENCY_TTL", 24*time.Hour),
		IdempotencyPurgeEvery: e.dur("IDEMPOTENCY_PURGE_EVERY", time.Hour),

		OTEL: OTELConfig{
			Enabled:     e.bool("OTEL_ENABLED", false),
			Endpoint:    e.str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    e.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: e.str("OTEL_SERVICE_NAME", "go-incident-hub"),
			SampleRatio: e.float("OTEL_TRACES_SAMPLER_ARG", 1),
		},
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	return cfg, errors.Join(append(e.errs, cfg.validate()...)...)
}

func (cfg Config) validate() []error {
	checks := []struct {
		bad bool
		msg string
	}{
		{!oneOf(cfg.LogLevel, "debug", "info", "warn", "error", "fatal", "panic"),
			"LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic"},
		{strings.TrimSpace(cfg.Port) == "", "PORT must not be empty"},
		{cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 ||
			cfg.IdleTimeout <= 0 || cfg.ShutdownTimeout <= 0, "server timeouts must be positive"},
		{cfg.MaxHeaderBytes <= 0, "MAX_HEADER_BYTES must be > 0"},
		{cfg.MaxBodyBytes <= 0, "MAX_BODY_BYTES must be > 0"},
		{strings.TrimSpace(cfg.DBPath) == "", "DB_PATH must not be empty"},
		{cfg.ClusterThresholdKm <= 0, "CLUSTER_THRESHOLD_KM must be > 0"},
		{cfg.Realtime.SendBuffer < 1, "WS_SEND_BUFFER must be >= 1"},
		{cfg.Realtime.MaxMessageBytes < 1, "WS_MAX_MESSAGE_BYTES must be >= 1"},
		{cfg.Realtime.WriteWait <= 0 || cfg.Realtime.PongWait <= 0, "WS_WRITE_WAIT and WS_PONG_WAIT must be positive"},
		{cfg.Realtime.MaxMessageRunes < 0, "MAX_MESSAGE_RUNES must be >= 0"},
		{cfg.RateRPS < 0, "RATE_RPS must be >= 0"},
		{cfg.RateBurst < 1, "RATE_BURST must be >= 1"},
		{cfg.Security.HSTSMaxAge < 0, "HSTS_MAX_AGE must be >= 0"},
		{cfg.IdempotencyTTL <= 0, "IDEMPOTENCY_TTL must be > 0"},
		{cfg.IdempotencyPurgeEvery <= 0, "IDEMPOTENCY_PURGE_EVERY must be > 0"},
		{cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1, "OTEL_TRACES_SAMPLER_ARG must be in [0,1]"},
	}
	var errs []error
	for _, ch := range checks {
		if ch.bad {
			errs = append(errs, errors.New(ch.msg))
		}
	}
	return errs
}

// env reads typed variables and remembers the ones it could not parse.
// Unset and empty variables take the default.
type env struct {
	errs []error
}

func (e *env) lookup(k string) (string, bool) {
	v, ok := os.LookupEnv(k)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *env) fail(k, v, want string) {
	e.errs = append(e.errs, fmt.Errorf("%s=%q is not a valid %s", k, v, want))
}

func (e *env) str(k, def string) string {
	if v, ok := e.lookup(k); ok {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "integer")
		return def
	}
	return i
}

func (e *env) float(k string, def float64) float64 {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "number")
		return def
	}
	return f
}

func (e *env) bool(k string, def bool) bool {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	e.fail(k, v, "boolean")
	return def
}

func (e *env) dur(k string, def time.Duration) time.Duration {
	v, ok := e.lookup(k)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, "duration")
		return def
	}
	return d
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath returns p with one leading slash and no trailing slash;
// empty becomes "/".
func normalizeBasePath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	return "/" + p
}
