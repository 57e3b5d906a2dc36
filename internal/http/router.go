// Package httpapi mounts the incident hub's REST and websocket surface on a
// gin engine.
//
// Every request passes through the same chain, outermost first: tracing,
// request id, redacting access log, panic recovery, body cap, metrics,
// idempotency check, rate limit, CORS, security headers and gzip. The
// idempotency check runs ahead of the limiter so a replayed create is never
// throttled. Websocket upgrades skip gzip because the connection is hijacked.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/docs"
	"github.com/tbourn/go-incident-hub/internal/config"
	"github.com/tbourn/go-incident-hub/internal/http/handlers"
	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/repo"
	"github.com/tbourn/go-incident-hub/internal/ws"
)

const (
	defaultMaxBody = 1 << 20
	readyTimeout   = 2 * time.Second
	corsMaxAge     = 12 * time.Hour
)

// apiMethods are the verbs the public API answers to.
var apiMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions}

// RegisterRoutes installs the middleware chain, the operational endpoints
// (/health, /ready, /metrics and optionally /swagger) and the API under
// cfg.APIBasePath. core is the realtime hub every handler delegates to.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, core handlers.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
			QuietPaths:  []string{"/health", "/ready", "/metrics"},
		}),
		middleware.Recovery(),
		limitBody(maxBody),
		middleware.Metrics(),
		middleware.IdempotencyValidator(middleware.IdempotencyOptions{MaxLen: 200}, idempotencyLookup(db)),
	)

	// Raising or closing an alert must never be throttled.
	limiter := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:   cfg.RateRPS,
		Burst: cfg.RateBurst,
		Exempt: []string{
			http.MethodPost + " " + joinPath(apiBase, "/sos"),
			http.MethodPatch + " " + joinPath(apiBase, "/sos/close/:user_id"),
		},
	})
	r.Use(limiter.Handler())
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
		SensitiveRoutes: []string{
			joinPath(apiBase, "/tickets/:id/messages"),
			joinPath(apiBase, "/users/:id/tickets"),
			joinPath(apiBase, "/sos"),
		},
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression,
		gzip.WithExcludedPaths([]string{joinPath(apiBase, "/ws/"), "/metrics"})))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/ready", readiness(db))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	h := handlers.New(core, repo.NewStore(db), handlers.Options{
		WS: ws.Options{
			SendBuffer:      cfg.Realtime.SendBuffer,
			MaxMessageBytes: cfg.Realtime.MaxMessageBytes,
			WriteWait:       cfg.Realtime.WriteWait,
			PongWait:        cfg.Realtime.PongWait,
		},
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		IdempotencyTTL: cfg.IdempotencyTTL,
	})

	api := groupWithPrefix(r, apiBase)

	api.POST("/tickets", h.CreateTicket)
	api.PATCH("/tickets/:id/close", h.CloseTicket)
	api.GET("/tickets/:id/messages", h.ListTicketMessages)
	api.GET("/users/:id/tickets", h.ListUserTickets)

	api.GET("/community/messages", h.ListCommunityMessages)
	api.GET("/areas", h.Areas)

	api.POST("/sos", h.CreateSOS)
	api.GET("/sos", h.ListSOS)
	api.PATCH("/sos/close/:user_id", h.CloseSOS)

	api.GET("/ws/community/:user_id", h.CommunityWS)
	api.GET("/ws/tickets/:ticket_id/:user_id", h.TicketWS)
}

// corsMiddleware answers preflights and stamps Access-Control-Allow-Origin.
// With no configured origins every origin is allowed and "*" is sent even
// when the request carries no Origin header; otherwise only listed origins
// are echoed back.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: apiMethods,
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			middleware.HeaderUserID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		MaxAge:        corsMaxAge,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// readiness reports 503 while the database cannot be reached.
func readiness(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			handlers.Fail(c, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, "database unavailable")
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// idempotencyLookup answers the validator from the idempotency table. A
// caller whose X-User-ID is not numeric never owns a record.
func idempotencyLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error) {
		uid, err := strconv.ParseInt(userID, 10, 64)
		if err != nil {
			return false, nil
		}
		rec, err := repo.GetIdempotency(ctx, db, uid, scope, key, now)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return false, nil
		case err != nil:
			return false, err
		}
		return rec != nil, nil
	}
}

// limitBody caps every request body at maxBytes; reads past the cap fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

func joinPath(base, suffix string) string {
	if base == "" || base == "/" {
		return suffix
	}
	return base + suffix
}
