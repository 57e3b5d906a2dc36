// Package hub is the composition root of the realtime core. It turns
// inbound events (connects, chat frames, SOS alerts, ticket lifecycle calls,
// disconnects) into persistence, room-membership and broadcast steps.
//
// For every room the hub persists a message and broadcasts it while holding
// that room's sequencing lock, so members observe messages in exactly the
// order they were stored. A storage failure aborts the event before anything
// is broadcast.
package hub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-incident-hub/internal/dispatch"
	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/geo"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/repo"
)

var (
	// ErrUserNotFound is returned when an event names an unknown user.
	ErrUserNotFound = errors.New("user not found")

	// ErrEmptyMessage is returned for text that is empty after sanitization.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned for text above the configured rune limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrNoOpenSOS is returned when closing an SOS for a user with none open.
	ErrNoOpenSOS = errors.New("no open SOS found")

	// ErrInvalidCoordinates is returned for latitudes outside [-90, 90] or
	// longitudes outside [-180, 180].
	ErrInvalidCoordinates = errors.New("invalid coordinates")

	// ErrUnknownRoom is returned when posting to a room identity the hub
	// does not recognize.
	ErrUnknownRoom = errors.New("unknown room")

	// ErrNoticeNotPosted is returned by OnSOSClose when the alerts were
	// resolved but the "safe now" notice could not be stored. The close is
	// committed; retrying it reports ErrNoOpenSOS.
	ErrNoticeNotPosted = errors.New("sos resolved but notice not posted")
)

// Storage is the persistence the hub needs beyond what the dispatcher owns.
// Unknown rows are reported as repo.ErrNotFound.
type Storage interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	CreateMessage(ctx context.Context, m *domain.Message) error
	CreateSOS(ctx context.Context, s *domain.SOS) error
	CloseSOS(ctx context.Context, userID int64, at time.Time) (int64, error)
	ListGeoPoints(ctx context.Context) ([]domain.GeoPoint, error)
}

// Tickets is the dispatcher surface used by the hub.
type Tickets interface {
	Create(ctx context.Context, in dispatch.NewTicket) (*domain.Ticket, error)
	Close(ctx context.Context, ticketID int64) ([]realtime.Connection, error)
	AuthorizeJoin(ctx context.Context, ticketID, userID int64) error
	Lookup(ctx context.Context, ticketID int64) (dispatch.TicketState, error)
}

// Rooms is the registry surface used by the hub.
type Rooms interface {
	Join(id realtime.RoomID, conn realtime.Connection) (bool, error)
	Leave(id realtime.RoomID, conn realtime.Connection) bool
	LeaveAll(conn realtime.Connection) []realtime.RoomID
	Broadcast(id realtime.RoomID, payload []byte) realtime.BroadcastReport
	Shutdown() []realtime.Connection
}

// ConnectKind selects which rooms a new connection joins.
type ConnectKind int

const (
	// ConnectCommunity joins the global room only.
	ConnectCommunity ConnectKind = iota
	// ConnectTicket joins the global room and one ticket room.
	ConnectTicket
)

// ConnectRequest describes a connection attempt.
type ConnectRequest struct {
	Kind     ConnectKind
	TicketID int64
}

// Options tunes the hub.
type Options struct {
	// ClusterThresholdKm is the absorption distance used by Areas.
	ClusterThresholdKm float64
	// MaxMessageRunes caps inbound chat text; 0 disables the check.
	MaxMessageRunes int
}

// Hub wires storage, the dispatcher and the room registry together.
type Hub struct {
	store   Storage
	tickets Tickets
	rooms   Rooms
	opts    Options

	seqMu sync.Mutex
	seq   map[realtime.RoomID]*sync.Mutex

	now func() time.Time
	log zerolog.Logger
}

// New returns a Hub. A non-positive threshold falls back to
// geo.DefaultThresholdKm.
func New(store Storage, tickets Tickets, rooms Rooms, opts Options, logger *zerolog.Logger) *Hub {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	if opts.ClusterThresholdKm <= 0 {
		opts.ClusterThresholdKm = geo.DefaultThresholdKm
	}
	return &Hub{
		store:   store,
		tickets: tickets,
		rooms:   rooms,
		opts:    opts,
		seq:     map[realtime.RoomID]*sync.Mutex{},
		now:     func() time.Time { return time.Now().UTC() },
		log:     lg.With().Str("component", "hub").Logger(),
	}
}

// roomLock returns the sequencing mutex for a room.
func (h *Hub) roomLock(id realtime.RoomID) *sync.Mutex {
	h.seqMu.Lock()
	defer h.seqMu.Unlock()
	m, ok := h.seq[id]
	if !ok {
		m = &sync.Mutex{}
		h.seq[id] = m
	}
	return m
}

func (h *Hub) forgetRoom(id realtime.RoomID) {
	h.seqMu.Lock()
	delete(h.seq, id)
	h.seqMu.Unlock()
}

func (h *Hub) user(ctx context.Context, id int64) (*domain.User, error) {
	u, err := h.store.GetUser(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return u, nil
}

// OnConnect admits conn into the rooms named by req. A community connection
// needs a known user; a ticket connection additionally needs the dispatcher
// to authorize the join. Denials are returned unchanged so the transport can
// refuse the session.
func (h *Hub) OnConnect(ctx context.Context, req ConnectRequest, conn realtime.Connection) error {
	tr := otel.Tracer("hub/Hub")
	ctx, span := tr.Start(ctx, "OnConnect",
		trace.WithAttributes(
			attribute.Int64("user.id", conn.UserID()),
			attribute.Int64("ticket.id", req.TicketID),
		),
	)
	defer span.End()

	if err := h.Admit(ctx, req, conn.UserID()); err != nil {
		return err
	}

	if req.Kind == ConnectTicket {
		if _, err := h.rooms.Join(realtime.TicketRoom(req.TicketID), conn); err != nil {
			// The ticket closed between authorization and join.
			if errors.Is(err, realtime.ErrRoomClosed) || errors.Is(err, realtime.ErrRoomNotFound) {
				rejectedJoinsTotal.WithLabelValues("ticket_closed").Inc()
				return dispatch.ErrTicketClosed
			}
			return err
		}
	}

	if _, err := h.rooms.Join(realtime.Global, conn); err != nil {
		if req.Kind == ConnectTicket {
			h.rooms.Leave(realtime.TicketRoom(req.TicketID), conn)
		}
		return err
	}
	h.log.Debug().
		Str("conn_id", conn.ID()).
		Int64("user_id", conn.UserID()).
		Int64("ticket_id", req.TicketID).
		Msg("connected")
	return nil
}

// Admit runs the checks OnConnect performs without joining any room. The
// transport calls it before upgrading so refusals can be answered with a
// plain HTTP status.
func (h *Hub) Admit(ctx context.Context, req ConnectRequest, userID int64) error {
	if _, err := h.user(ctx, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			rejectedJoinsTotal.WithLabelValues("unknown_user").Inc()
		}
		return err
	}
	if req.Kind != ConnectTicket {
		return nil
	}
	if err := h.tickets.AuthorizeJoin(ctx, req.TicketID, userID); err != nil {
		rejectedJoinsTotal.WithLabelValues(denialReason(err)).Inc()
		h.log.Info().
			Err(err).
			Int64("ticket_id", req.TicketID).
			Int64("user_id", userID).
			Msg("ticket join refused")
		return err
	}
	return nil
}

func denialReason(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrTicketClosed):
		return "ticket_closed"
	case errors.Is(err, dispatch.ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, dispatch.ErrTicketNotFound):
		return "ticket_not_found"
	default:
		return "error"
	}
}

// OnMessage validates text, persists it in room and broadcasts it to the
// room's current members. Posting to a ticket room requires the sender to be
// a participant of an open ticket.
func (h *Hub) OnMessage(ctx context.Context, room realtime.RoomID, senderID int64, text string) (*domain.Message, error) {
	tr := otel.Tracer("hub/Hub")
	ctx, span := tr.Start(ctx, "OnMessage",
		trace.WithAttributes(
			attribute.String("room", string(room)),
			attribute.Int64("user.id", senderID),
		),
	)
	defer span.End()

	text = sanitize(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if h.opts.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > h.opts.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	u, err := h.user(ctx, senderID)
	if err != nil {
		return nil, err
	}

	m, err := h.post(ctx, room, u, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post")
		return nil, err
	}
	return m, nil
}

// post persists and broadcasts under the room's sequencing lock.
func (h *Hub) post(ctx context.Context, room realtime.RoomID, u *domain.User, text string) (*domain.Message, error) {
	name := u.Name
	var ticketID *int64

	if room != realtime.Global {
		id, ok := room.TicketID()
		if !ok {
			return nil, ErrUnknownRoom
		}
		ticketID = &id
	}

	lock := h.roomLock(room)
	lock.Lock()
	retired := false
	defer func() {
		lock.Unlock()
		if retired {
			h.forgetRoom(room)
		}
	}()

	if ticketID != nil {
		st, err := h.tickets.Lookup(ctx, *ticketID)
		if errors.Is(err, dispatch.ErrTicketNotFound) {
			retired = true
		}
		if err != nil {
			return nil, err
		}
		if !st.Open {
			// Stale sessions may keep posting after room_closed; drop the
			// lock again so closed rooms leave nothing behind.
			retired = true
			return nil, dispatch.ErrTicketClosed
		}
		if !st.IsParticipant(u.ID) {
			return nil, dispatch.ErrNotParticipant
		}
		if st.Anonymous && u.ID == st.RequesterID {
			name = AnonymousName
		}
	}

	m := &domain.Message{Room: string(room), TicketID: ticketID, UserID: u.ID, Text: text, CreatedAt: h.now()}
	if err := h.store.CreateMessage(ctx, m); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	view := ViewOf(m, name)
	rep := h.rooms.Broadcast(room, encode(Envelope{Type: TypeMessage, Room: string(room), Message: &view}))
	messagesTotal.WithLabelValues(room.Kind()).Inc()

	h.log.Debug().
		Str("room", string(room)).
		Int64("message_id", m.ID).
		Int("delivered", rep.Delivered).
		Int("failed", len(rep.Failed)).
		Msg("message broadcast")
	return m, nil
}

func validCoordinates(lat, long float64) bool {
	if math.IsNaN(lat) || math.IsNaN(long) {
		return false
	}
	return lat >= -90 && lat <= 90 && long >= -180 && long <= 180
}

// OnSOSCreate records an SOS and posts an alert with a map link and the
// user's contact details to the global room.
func (h *Hub) OnSOSCreate(ctx context.Context, userID int64, lat, long float64) (*domain.SOS, *domain.Message, error) {
	tr := otel.Tracer("hub/Hub")
	ctx, span := tr.Start(ctx, "OnSOSCreate",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	if !validCoordinates(lat, long) {
		return nil, nil, ErrInvalidCoordinates
	}
	u, err := h.user(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	sos := &domain.SOS{UserID: userID, Lat: lat, Long: long, CreatedAt: h.now()}
	if err := h.store.CreateSOS(ctx, sos); err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("persist sos: %w", err)
	}
	sosTotal.WithLabelValues("raised").Inc()
	h.log.Warn().
		Int64("sos_id", sos.ID).
		Int64("user_id", userID).
		Float64("lat", lat).
		Float64("long", long).
		Msg("sos raised")

	m, err := h.post(ctx, realtime.Global, u, alertText(u, lat, long))
	if err != nil {
		span.RecordError(err)
		return sos, nil, err
	}
	return sos, m, nil
}

// OnSOSClose resolves the user's open SOS alerts and tells the global room.
// The close commits before the notice is posted; if posting fails the error
// wraps ErrNoticeNotPosted and the alerts stay resolved.
func (h *Hub) OnSOSClose(ctx context.Context, userID int64) error {
	tr := otel.Tracer("hub/Hub")
	ctx, span := tr.Start(ctx, "OnSOSClose",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	u, err := h.user(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := h.store.CloseSOS(ctx, userID, h.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNoOpenSOS
		}
		return fmt.Errorf("close sos: %w", err)
	}
	sosTotal.WithLabelValues("resolved").Inc()

	if _, err := h.post(ctx, realtime.Global, u, resolvedText(u)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %w", ErrNoticeNotPosted, err)
	}
	return nil
}

// OnTicketCreate validates the request and hands it to the dispatcher.
func (h *Hub) OnTicketCreate(ctx context.Context, in dispatch.NewTicket) (*domain.Ticket, error) {
	if !validCoordinates(in.Lat, in.Long) {
		return nil, ErrInvalidCoordinates
	}
	in.ReportText = sanitize(in.ReportText)
	if in.ReportText == "" {
		return nil, ErrEmptyMessage
	}
	if h.opts.MaxMessageRunes > 0 && utf8.RuneCountInString(in.ReportText) > h.opts.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	if _, err := h.user(ctx, in.RequesterID); err != nil {
		return nil, err
	}
	return h.tickets.Create(ctx, in)
}

// OnTicketClose closes the ticket and tells every evicted connection that
// its ticket room is gone. Closing an already closed ticket returns
// dispatch.ErrAlreadyClosed.
func (h *Hub) OnTicketClose(ctx context.Context, ticketID int64) error {
	room := realtime.TicketRoom(ticketID)

	lock := h.roomLock(room)
	lock.Lock()
	evicted, err := h.tickets.Close(ctx, ticketID)
	lock.Unlock()
	if err != nil {
		return err
	}
	h.forgetRoom(room)

	payload := encode(Envelope{Type: TypeRoomClosed, Room: string(room)})
	for _, c := range evicted {
		if err := c.Send(payload); err != nil {
			h.log.Debug().Err(err).Str("conn_id", c.ID()).Msg("room_closed notice not delivered")
		}
	}
	return nil
}

// OnDisconnect removes conn from every room. It never fails.
func (h *Hub) OnDisconnect(conn realtime.Connection) {
	left := h.rooms.LeaveAll(conn)
	h.log.Debug().
		Str("conn_id", conn.ID()).
		Int("rooms", len(left)).
		Msg("disconnected")
}

// pointKind maps a stored point source onto its geo kind. Unknown sources
// are left unlabeled.
func pointKind(source string) geo.Kind {
	switch source {
	case repo.PointSOS:
		return geo.KindSOS
	case repo.PointReport:
		return geo.KindReport
	default:
		return ""
	}
}

// Areas clusters every recorded SOS and ticket-report location.
func (h *Hub) Areas(ctx context.Context) ([]geo.Cluster, error) {
	tr := otel.Tracer("hub/Hub")
	ctx, span := tr.Start(ctx, "Areas")
	defer span.End()

	rows, err := h.store.ListGeoPoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list points: %w", err)
	}
	pts := make([]geo.Point, 0, len(rows))
	for _, r := range rows {
		pts = append(pts, geo.Point{Latitude: r.Lat, Longitude: r.Long, Kind: pointKind(r.Kind)})
	}
	clusters := geo.Group(pts, h.opts.ClusterThresholdKm)
	span.SetAttributes(
		attribute.Int("points", len(pts)),
		attribute.Int("clusters", len(clusters)),
	)
	return clusters, nil
}

// Shutdown evicts every connection, sends each a server_shutdown notice and
// closes it when the transport supports closing.
func (h *Hub) Shutdown() {
	conns := h.rooms.Shutdown()
	payload := encode(Envelope{Type: TypeServerShutdown})
	for _, c := range conns {
		_ = c.Send(payload)
		if cl, ok := c.(io.Closer); ok {
			_ = cl.Close()
		}
	}
	h.log.Info().Int("connections", len(conns)).Msg("hub shut down")
}
