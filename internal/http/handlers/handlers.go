// Package handlers exposes the REST and websocket endpoints of the incident
// hub. Handlers are transport-thin: they validate input, call the hub or the
// read-side store, and translate results and sentinel errors into the
// standard response envelopes.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/go-incident-hub/internal/dispatch"
	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/geo"
	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/utils"
	"github.com/tbourn/go-incident-hub/internal/ws"
)

//
// Collaborator contracts (context-aware)
//

// Hub is the event surface of the realtime core.
type Hub interface {
	Admit(ctx context.Context, req hub.ConnectRequest, userID int64) error
	OnConnect(ctx context.Context, req hub.ConnectRequest, conn realtime.Connection) error
	OnMessage(ctx context.Context, room realtime.RoomID, senderID int64, text string) (*domain.Message, error)
	OnDisconnect(conn realtime.Connection)
	OnSOSCreate(ctx context.Context, userID int64, lat, long float64) (*domain.SOS, *domain.Message, error)
	OnSOSClose(ctx context.Context, userID int64) error
	OnTicketCreate(ctx context.Context, in dispatch.NewTicket) (*domain.Ticket, error)
	OnTicketClose(ctx context.Context, ticketID int64) error
	Areas(ctx context.Context) ([]geo.Cluster, error)
}

// Store is the read side used by list endpoints and idempotent replays.
// Unknown rows are reported as repo.ErrNotFound.
type Store interface {
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)
	GetTicketReport(ctx context.Context, ticketID int64) (*domain.TicketReport, error)
	ListOpenTicketsForUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
	GetSOS(ctx context.Context, id int64) (*domain.SOS, error)
	ListOpenSOS(ctx context.Context) ([]domain.SOS, error)
	ListRoomMessagesPage(ctx context.Context, room string, offset, limit int) ([]domain.Message, error)
	RoomMessagesStats(ctx context.Context, room string) (count, lastID int64, err error)
	GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error)
	CreateIdempotency(ctx context.Context, userID int64, scope, key string, recordID int64, status int, ttl time.Duration) (*domain.Idempotency, error)
}

//
// Handler wiring
//

// Options configures transport details of the handlers.
type Options struct {
	// WS tunes every websocket session.
	WS ws.Options
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string
	// IdempotencyTTL bounds how long a create can be replayed. Defaults to 24h.
	IdempotencyTTL time.Duration
}

// Handlers groups the HTTP endpoints.
type Handlers struct {
	hub      Hub
	store    Store
	opts     Options
	upgrader websocket.Upgrader
}

// New constructs Handlers bound to the hub and the read-side store.
func New(h Hub, store Store, opts Options) *Handlers {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	return &Handlers{
		hub:   h,
		store: store,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
	}
}

// originChecker allows every origin when the allowlist is empty, and
// requests without an Origin header (non-browser clients) always.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// callerID reads the numeric caller identity from the X-User-ID header.
func callerID(c *gin.Context) (int64, bool) {
	return utils.ParseID(strings.TrimSpace(c.GetHeader(middleware.HeaderUserID)))
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.IntOr(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.IntOr(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
