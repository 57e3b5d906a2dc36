// Package dispatch owns the ticket lifecycle: assigning every new ticket to
// the least-loaded responder, deciding who may join a ticket's room, and
// tying the room's lifetime to the ticket's Open → Closed transition.
//
// All Create and Close calls are serialized through a single mutex so that
// two concurrent creations observe each other's load, and so that a close
// cannot interleave with an authorization decision for the same ticket.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/repo"
)

var (
	// ErrNoResponderAvailable is returned when no user is flagged as a responder.
	ErrNoResponderAvailable = errors.New("no responder available")

	// ErrTicketNotFound indicates an unknown ticket id.
	ErrTicketNotFound = errors.New("ticket not found")

	// ErrAlreadyClosed is returned by Close for a ticket that is already
	// closed. It matches ErrTicketNotFound under errors.Is so callers that only
	// care about "no open ticket with this id" can treat both alike.
	ErrAlreadyClosed = fmt.Errorf("ticket already closed: %w", ErrTicketNotFound)

	// ErrUnauthorized is the parent of every join denial.
	ErrUnauthorized = errors.New("not authorized to join ticket")

	// ErrTicketClosed denies joins to a closed ticket's room.
	ErrTicketClosed = fmt.Errorf("ticket is closed: %w", ErrUnauthorized)

	// ErrNotParticipant denies joins by users who are neither requester nor responder.
	ErrNotParticipant = fmt.Errorf("user is not a participant: %w", ErrUnauthorized)

	// ErrInvalidTicket is returned for a NewTicket missing its requester or report.
	ErrInvalidTicket = errors.New("invalid ticket")
)

// Store is the persistence contract the dispatcher needs. Lookups of unknown
// rows return repo.ErrNotFound.
type Store interface {
	// OpenTicketCountByResponder lists every responder, including those with
	// zero open tickets.
	OpenTicketCountByResponder(ctx context.Context) ([]domain.ResponderLoad, error)
	// CreateTicket persists the ticket, its report and the opening room
	// message in one transaction, filling in generated ids.
	CreateTicket(ctx context.Context, t *domain.Ticket, report *domain.TicketReport, first *domain.Message) error
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)
	ListOpenTickets(ctx context.Context) ([]domain.Ticket, error)
	// CloseTicket flips an open ticket to closed. It returns repo.ErrNotFound
	// when no open ticket with that id exists.
	CloseTicket(ctx context.Context, id int64, at time.Time) error
}

// Rooms is the subset of the room registry the dispatcher drives.
type Rooms interface {
	OpenRoom(id realtime.RoomID) error
	CloseRoom(id realtime.RoomID) []realtime.Connection
}

// NewTicket is the input to Create.
type NewTicket struct {
	RequesterID int64
	ReportText  string
	Lat         float64
	Long        float64
	Anonymous   bool
}

// TicketState is the dispatcher's view of a ticket.
type TicketState struct {
	ID          int64
	RequesterID int64
	ResponderID int64
	Anonymous   bool
	Open        bool
}

// IsParticipant reports whether userID is the requester or the responder.
func (s TicketState) IsParticipant(userID int64) bool {
	return userID == s.RequesterID || userID == s.ResponderID
}

func stateOf(t *domain.Ticket) TicketState {
	return TicketState{
		ID:          t.ID,
		RequesterID: t.RequesterID,
		ResponderID: t.ResponderID,
		Anonymous:   t.Anonymous,
		Open:        t.Open,
	}
}

// Dispatcher assigns, authorizes and closes tickets.
type Dispatcher struct {
	mu sync.Mutex

	store Store
	rooms Rooms

	// tickets caches open tickets only. Closed is terminal, so closed
	// tickets are answered from the store.
	tickets map[int64]TicketState

	now func() time.Time
	log zerolog.Logger
}

// New wires a dispatcher to its store and room registry.
func New(store Store, rooms Rooms, logger *zerolog.Logger) *Dispatcher {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	return &Dispatcher{
		store:   store,
		rooms:   rooms,
		tickets: map[int64]TicketState{},
		now:     func() time.Time { return time.Now().UTC() },
		log:     lg.With().Str("component", "dispatcher").Logger(),
	}
}

// Create assigns the ticket to the least-loaded responder, persists it and
// opens its room. Every user with the responder flag is a candidate,
// including a requester who is one.
func (d *Dispatcher) Create(ctx context.Context, in NewTicket) (*domain.Ticket, error) {
	tr := otel.Tracer("dispatch/Dispatcher")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(attribute.Int64("user.id", in.RequesterID)),
	)
	defer span.End()

	text := strings.TrimSpace(in.ReportText)
	if in.RequesterID <= 0 || text == "" {
		return nil, ErrInvalidTicket
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	loads, err := d.store.OpenTicketCountByResponder(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load ranking")
		return nil, fmt.Errorf("rank responders: %w", err)
	}
	responder, ok := pickResponder(loads)
	if !ok {
		noResponderTotal.Inc()
		d.log.Warn().Int64("user_id", in.RequesterID).Msg("no responder available")
		return nil, ErrNoResponderAvailable
	}

	t := &domain.Ticket{
		RequesterID: in.RequesterID,
		ResponderID: responder,
		Anonymous:   in.Anonymous,
		Open:        true,
	}
	report := &domain.TicketReport{Text: text, Lat: in.Lat, Long: in.Long}
	first := &domain.Message{UserID: in.RequesterID, Text: text}
	if err := d.store.CreateTicket(ctx, t, report, first); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return nil, fmt.Errorf("persist ticket: %w", err)
	}

	if err := d.rooms.OpenRoom(realtime.TicketRoom(t.ID)); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("open room for ticket %d: %w", t.ID, err)
	}
	d.tickets[t.ID] = stateOf(t)
	ticketsCreatedTotal.Inc()
	openTicketsGauge.Inc()

	span.SetAttributes(
		attribute.Int64("ticket.id", t.ID),
		attribute.Int64("responder.id", responder),
	)
	d.log.Info().
		Int64("ticket_id", t.ID).
		Int64("user_id", in.RequesterID).
		Int64("responder_id", responder).
		Msg("ticket created")
	return t, nil
}

// Close moves an open ticket to Closed, closes its room and returns the
// connections that were evicted from it. Closed is terminal.
func (d *Dispatcher) Close(ctx context.Context, ticketID int64) ([]realtime.Connection, error) {
	tr := otel.Tracer("dispatch/Dispatcher")
	ctx, span := tr.Start(ctx, "Close",
		trace.WithAttributes(attribute.Int64("ticket.id", ticketID)),
	)
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.lookupLocked(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !st.Open {
		return nil, ErrAlreadyClosed
	}

	if err := d.store.CloseTicket(ctx, ticketID, d.now()); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			// Closed behind our back.
			delete(d.tickets, ticketID)
			return nil, ErrAlreadyClosed
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return nil, fmt.Errorf("close ticket %d: %w", ticketID, err)
	}

	delete(d.tickets, ticketID)
	evicted := d.rooms.CloseRoom(realtime.TicketRoom(ticketID))
	ticketsClosedTotal.Inc()
	openTicketsGauge.Dec()

	span.SetAttributes(attribute.Int("evicted", len(evicted)))
	d.log.Info().
		Int64("ticket_id", ticketID).
		Int("evicted", len(evicted)).
		Msg("ticket closed")
	return evicted, nil
}

// AuthorizeJoin decides whether userID may join the ticket's room. It
// returns nil to allow, ErrTicketNotFound for an unknown ticket, or an error
// matching ErrUnauthorized.
func (d *Dispatcher) AuthorizeJoin(ctx context.Context, ticketID, userID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, err := d.lookupLocked(ctx, ticketID)
	if err != nil {
		return err
	}
	if !st.Open {
		return ErrTicketClosed
	}
	if !st.IsParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

// Lookup returns the current state of a ticket.
func (d *Dispatcher) Lookup(ctx context.Context, ticketID int64) (TicketState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lookupLocked(ctx, ticketID)
}

func (d *Dispatcher) lookupLocked(ctx context.Context, ticketID int64) (TicketState, error) {
	if st, ok := d.tickets[ticketID]; ok {
		return st, nil
	}
	t, err := d.store.GetTicket(ctx, ticketID)
	if errors.Is(err, repo.ErrNotFound) {
		return TicketState{}, ErrTicketNotFound
	}
	if err != nil {
		return TicketState{}, fmt.Errorf("load ticket %d: %w", ticketID, err)
	}
	st := stateOf(t)
	if st.Open {
		d.tickets[ticketID] = st
	}
	return st, nil
}

// Restore reopens the rooms of every ticket the store reports as open. It is
// meant to run once at start-up, before any connection is accepted.
func (d *Dispatcher) Restore(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	open, err := d.store.ListOpenTickets(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open tickets: %w", err)
	}
	n := 0
	for i := range open {
		t := &open[i]
		if err := d.rooms.OpenRoom(realtime.TicketRoom(t.ID)); err != nil {
			d.log.Warn().Err(err).Int64("ticket_id", t.ID).Msg("cannot restore room")
			continue
		}
		d.tickets[t.ID] = stateOf(t)
		n++
	}
	openTicketsGauge.Set(float64(n))
	d.log.Info().Int("tickets", n).Msg("open tickets restored")
	return n, nil
}

// pickResponder ranks responders by open-ticket count ascending, breaking
// ties by the lowest user id. It reports false only when loads is empty.
func pickResponder(loads []domain.ResponderLoad) (int64, bool) {
	cands := append([]domain.ResponderLoad(nil), loads...)
	if len(cands) == 0 {
		return 0, false
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].OpenTickets != cands[j].OpenTickets {
			return cands[i].OpenTickets < cands[j].OpenTickets
		}
		return cands[i].ResponderID < cands[j].ResponderID
	})
	return cands[0].ResponderID, true
}
