// Package sysutil configures process-wide logging.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "incident-hub"

// logLines counts warn-and-above lines so an alert can fire on a burst of
// failed broadcasts or dispatches without scraping logs.
var logLines = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "log_messages_total",
		Help: "Log lines written at warn level or above.",
	},
	[]string{"level"},
)

func init() {
	prometheus.MustRegister(logLines)
}

type levelCounter struct{}

func (levelCounter) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	if level >= zerolog.WarnLevel && level < zerolog.NoLevel {
		logLines.WithLabelValues(level.String()).Inc()
	}
}

// SetupLogger installs and returns the global logger. Pretty selects the
// console writer; otherwise w receives JSON lines with unix timestamps.
// A nil w means stderr.
func SetupLogger(level string, pretty bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	SetLogLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(w).
		Hook(levelCounter{}).
		With().Timestamp().Str("service", serviceName).
		Logger()
	return log.Logger
}

// SetLogLevel sets the global level. "warning" is accepted for warn; empty
// or unknown names mean info.
func SetLogLevel(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
