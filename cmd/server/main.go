// Command server runs the incident hub: HTTP API, websockets and the realtime
// dispatch core on top of a SQLite database.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-incident-hub/internal/config"
	"github.com/tbourn/go-incident-hub/internal/dispatch"
	httpapi "github.com/tbourn/go-incident-hub/internal/http"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/observability"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/repo"
	"github.com/tbourn/go-incident-hub/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg := config.MustLoad()
	_ = sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, nil)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	store := repo.NewStore(db)
	reg := realtime.NewRegistry(nil)
	disp := dispatch.New(store, reg, nil)
	if _, err := disp.Restore(ctx); err != nil {
		log.Fatal().Err(err).Msg("restore open tickets")
	}
	core := hub.New(store, disp, reg, hub.Options{
		ClusterThresholdKm: cfg.ClusterThresholdKm,
		MaxMessageRunes:    cfg.Realtime.MaxMessageRunes,
	}, nil)

	r := gin.New()
	httpapi.RegisterRoutes(r, db, core, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go purgeIdempotency(ctx, store, cfg.IdempotencyPurgeEvery)

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	// Websockets are hijacked; srv.Shutdown does not wait for them.
	core.Shutdown()

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := shutdownOTel(sctx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// purgeIdempotency drops expired idempotency records until ctx ends.
func purgeIdempotency(ctx context.Context, store *repo.Store, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.PurgeExpiredIdempotency(ctx, now.UTC())
			if err != nil {
				log.Warn().Err(err).Msg("purge idempotency")
				continue
			}
			if n > 0 {
				log.Debug().Int64("rows", n).Msg("expired idempotency purged")
			}
		}
	}
}
