// Package repo persists users, tickets, messages, alerts and idempotency
// records with GORM on SQLite.
package repo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// ErrNotFound aliases gorm.ErrRecordNotFound so callers can match either.
var ErrNotFound = gorm.ErrRecordNotFound

// slowQuery is the threshold above which a query is logged at warn.
const slowQuery = 200 * time.Millisecond

// pragmas run on every new connection. busy_timeout and foreign_keys are
// per-connection settings, so they belong in the DSN rather than in a
// one-off Exec that only reaches whichever pooled connection ran it.
var pragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(ON)",
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	return path + "?" + q.Encode()
}

// OpenSQLite opens (or creates) the database file at path and installs the
// OpenTelemetry plugin so every query becomes a span. The parent directory
// must exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: NewGormLogger(log.Logger.With().Str("component", "db").Logger(), slowQuery),
	})
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// One writer at a time is all SQLite allows; a small pool keeps readers
	// (history pages, area markers) from queueing behind broadcasts.
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(4)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Ticket{},
		&domain.TicketReport{},
		&domain.Message{},
		&domain.SOS{},
		&domain.Idempotency{},
	)
}

// GormLogger routes GORM's log output to zerolog: failed queries at error,
// slow queries at warn, and every statement at debug when the level is Info.
// ErrRecordNotFound is an expected outcome and is not logged.
type GormLogger struct {
	log   zerolog.Logger
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger returns a GormLogger at logger.Warn.
func NewGormLogger(lg zerolog.Logger, slow time.Duration) *GormLogger {
	return &GormLogger{log: lg, level: logger.Warn, slow: slow}
}

func (g *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *GormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Info {
		g.log.Info().Msgf(msg, args...)
	}
}

func (g *GormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Warn {
		g.log.Warn().Msgf(msg, args...)
	}
}

func (g *GormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Error {
		g.log.Error().Msgf(msg, args...)
	}
}

// Trace logs one finished statement. The SQL text is only logged at Info
// level since bound values include phone numbers and coordinates.
func (g *GormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= logger.Error:
		_, rows := fc()
		g.log.Error().Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Msg("query failed")
	case g.slow > 0 && elapsed > g.slow && g.level >= logger.Warn:
		_, rows := fc()
		g.log.Warn().Dur("elapsed", elapsed).Int64("rows", rows).Msg("slow query")
	case g.level >= logger.Info:
		sql, rows := fc()
		g.log.Debug().Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("query")
	}
}
