package sysutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func keepGlobals(t *testing.T) {
	t.Helper()
	level, logger, format := zerolog.GlobalLevel(), log.Logger, zerolog.TimeFieldFormat
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(level)
		log.Logger = logger
		zerolog.TimeFieldFormat = format
	})
}

func TestSetLogLevel(t *testing.T) {
	keepGlobals(t)
	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"":          zerolog.InfoLevel,
		"info":      zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"Warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"loud":      zerolog.InfoLevel,
	}
	for in, want := range cases {
		SetLogLevel(in)
		if got := zerolog.GlobalLevel(); got != want {
			t.Errorf("SetLogLevel(%q) = %v; want %v", in, got, want)
		}
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	keepGlobals(t)
	var buf bytes.Buffer
	lg := SetupLogger("debug", false, &buf)

	lg.Debug().Int64("ticket_id", 41).Msg("ticket dispatched")
	out := buf.String()
	for _, want := range []string{`"message":"ticket dispatched"`, `"service":"incident-hub"`, `"ticket_id":41`, `"time":`} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in %s", want, out)
		}
	}
}

func TestSetupLogger_PrettyAndLevelFilter(t *testing.T) {
	keepGlobals(t)
	var buf bytes.Buffer
	SetupLogger("warn", true, &buf)

	log.Info().Msg("dropped")
	log.Warn().Msg("kept")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Fatalf("level filter not applied: %s", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Fatalf("expected console output, got JSON: %s", out)
	}
}

func TestSetupLogger_CountsWarnAndAbove(t *testing.T) {
	keepGlobals(t)
	var buf bytes.Buffer
	SetupLogger("debug", false, &buf)

	warn := testutil.ToFloat64(logLines.WithLabelValues("warn"))
	errs := testutil.ToFloat64(logLines.WithLabelValues("error"))
	info := testutil.ToFloat64(logLines.WithLabelValues("info"))

	log.Info().Msg("sos raised")
	log.Warn().Msg("broadcast dropped")
	log.Error().Msg("dispatch failed")
	log.Error().Msg("dispatch failed")

	if got := testutil.ToFloat64(logLines.WithLabelValues("warn")); got != warn+1 {
		t.Errorf("warn count = %v; want %v", got, warn+1)
	}
	if got := testutil.ToFloat64(logLines.WithLabelValues("error")); got != errs+2 {
		t.Errorf("error count = %v; want %v", got, errs+2)
	}
	if got := testutil.ToFloat64(logLines.WithLabelValues("info")); got != info {
		t.Errorf("info lines must not be counted")
	}
}
