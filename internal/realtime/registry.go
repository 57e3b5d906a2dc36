// Package realtime keeps live connections organized into broadcast rooms and
// fans payloads out to exactly the members of a room.
//
// There is one global room that always exists, and one room per open ticket.
// Every connection may belong to the global room and to at most one ticket
// room at a time. Ticket rooms are opened explicitly (OpenRoom) and, once
// closed, their identity is retired so that old membership can never
// reappear under the same id.
//
// Broadcasts deliver to a snapshot of the membership taken at call time:
// members that join afterwards do not receive the payload, and a member whose
// Send fails is removed from the room without affecting delivery to the rest.
package realtime

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RoomID identifies a broadcast room.
type RoomID string

// Global is the singleton community room.
const Global RoomID = "global"

const ticketPrefix = "ticket:"

// TicketRoom returns the room identity for a ticket.
func TicketRoom(ticketID int64) RoomID {
	return RoomID(ticketPrefix + strconv.FormatInt(ticketID, 10))
}

// TicketID extracts the ticket id from a ticket room identity.
func (r RoomID) TicketID() (int64, bool) {
	s, ok := strings.CutPrefix(string(r), ticketPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// IsTicket reports whether r is a ticket room identity.
func (r RoomID) IsTicket() bool {
	_, ok := r.TicketID()
	return ok
}

// Kind returns a low-cardinality label for metrics and logs.
func (r RoomID) Kind() string {
	if r == Global {
		return "global"
	}
	return "ticket"
}

// Connection is one live transport session. Implementations must be safe for
// concurrent use; Send must not block indefinitely.
type Connection interface {
	// ID is unique per session for the lifetime of the process.
	ID() string
	// UserID is the authenticated user behind the session.
	UserID() int64
	// Send delivers a payload or reports a transport error.
	Send(payload []byte) error
}

var (
	// ErrRoomNotFound is returned when joining a ticket room that was never opened.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomClosed is returned when joining or reopening a retired room.
	ErrRoomClosed = errors.New("room closed")

	// ErrTicketRoomLimit is returned when a connection already sits in a
	// different ticket room.
	ErrTicketRoomLimit = errors.New("connection already joined another ticket room")
)

// BroadcastReport summarizes one fan-out.
type BroadcastReport struct {
	// Delivered counts members whose Send succeeded.
	Delivered int
	// Failed lists members that errored and were removed from the room.
	Failed []Connection
}

type room struct {
	members map[string]Connection
}

// Registry owns room membership. Create one per process with NewRegistry and
// tear it down with Shutdown; the zero value is not usable.
type Registry struct {
	mu sync.RWMutex

	rooms   map[RoomID]*room
	retired map[RoomID]struct{}

	// memberships maps connection id → rooms it has joined, so that a
	// disconnect touches only the rooms the connection is actually in.
	memberships map[string]map[RoomID]struct{}

	log zerolog.Logger
}

// NewRegistry returns a registry with the global room already open.
func NewRegistry(logger *zerolog.Logger) *Registry {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	r := &Registry{
		rooms:       map[RoomID]*room{Global: {members: map[string]Connection{}}},
		retired:     map[RoomID]struct{}{},
		memberships: map[string]map[RoomID]struct{}{},
		log:         lg.With().Str("component", "registry").Logger(),
	}
	roomsGauge.Inc()
	return r
}

// OpenRoom creates an empty room. Opening an existing room is a no-op;
// opening a retired room fails with ErrRoomClosed.
func (r *Registry) OpenRoom(id RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, gone := r.retired[id]; gone {
		return ErrRoomClosed
	}
	if _, ok := r.rooms[id]; ok {
		return nil
	}
	r.rooms[id] = &room{members: map[string]Connection{}}
	roomsGauge.Inc()
	r.log.Debug().Str("room", string(id)).Msg("room opened")
	return nil
}

// Join adds conn to the room. Joining twice is not an error: added is false
// and membership is unchanged.
func (r *Registry) Join(id RoomID, conn Connection) (added bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		if _, gone := r.retired[id]; gone {
			return false, ErrRoomClosed
		}
		return false, ErrRoomNotFound
	}
	if _, dup := rm.members[conn.ID()]; dup {
		return false, nil
	}

	joined := r.memberships[conn.ID()]
	if id.IsTicket() {
		for other := range joined {
			if other.IsTicket() {
				return false, ErrTicketRoomLimit
			}
		}
	}
	if joined == nil {
		joined = map[RoomID]struct{}{}
		r.memberships[conn.ID()] = joined
		connectionsGauge.Inc()
	}
	joined[id] = struct{}{}
	rm.members[conn.ID()] = conn

	r.log.Debug().
		Str("room", string(id)).
		Str("conn_id", conn.ID()).
		Int64("user_id", conn.UserID()).
		Int("members", len(rm.members)).
		Msg("joined")
	return true, nil
}

// Leave removes conn from the room. Removing a non-member is a no-op.
func (r *Registry) Leave(id RoomID, conn Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(id, conn.ID())
}

// LeaveAll removes conn from every room it joined and returns those rooms.
func (r *Registry) LeaveAll(conn Connection) []RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined := r.memberships[conn.ID()]
	out := make([]RoomID, 0, len(joined))
	for id := range joined {
		out = append(out, id)
	}
	for _, id := range out {
		r.leaveLocked(id, conn.ID())
	}
	return out
}

func (r *Registry) leaveLocked(id RoomID, connID string) bool {
	rm, ok := r.rooms[id]
	if !ok {
		return false
	}
	if _, member := rm.members[connID]; !member {
		return false
	}
	delete(rm.members, connID)
	r.forgetLocked(id, connID)
	return true
}

// forgetLocked drops id from the connection's membership set.
func (r *Registry) forgetLocked(id RoomID, connID string) {
	joined := r.memberships[connID]
	delete(joined, id)
	if len(joined) == 0 {
		delete(r.memberships, connID)
		connectionsGauge.Dec()
	}
}

// Broadcast delivers payload to the members present at call time. Members
// whose Send fails are removed from the room and reported; the remaining
// members still receive the payload. Broadcasting to an unknown room
// delivers nothing.
func (r *Registry) Broadcast(id RoomID, payload []byte) BroadcastReport {
	r.mu.RLock()
	rm, ok := r.rooms[id]
	var snapshot []Connection
	if ok {
		snapshot = make([]Connection, 0, len(rm.members))
		for _, c := range rm.members {
			snapshot = append(snapshot, c)
		}
	}
	r.mu.RUnlock()

	var rep BroadcastReport
	if !ok {
		return rep
	}
	broadcastsTotal.WithLabelValues(id.Kind()).Inc()

	for _, c := range snapshot {
		if err := c.Send(payload); err != nil {
			rep.Failed = append(rep.Failed, c)
			r.log.Warn().
				Err(err).
				Str("room", string(id)).
				Str("conn_id", c.ID()).
				Msg("delivery failed, removing member")
			continue
		}
		rep.Delivered++
	}

	for _, c := range rep.Failed {
		r.Leave(id, c)
	}
	deliveryFailures.Add(float64(len(rep.Failed)))
	return rep
}

// CloseRoom removes the room, retires its identity, and returns the evicted
// members so the caller can notify them. Closing an unknown room or the
// global room is a no-op.
func (r *Registry) CloseRoom(id RoomID) []Connection {
	if id == Global {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[id]
	if !ok {
		return nil
	}
	delete(r.rooms, id)
	r.retired[id] = struct{}{}
	roomsGauge.Dec()

	evicted := make([]Connection, 0, len(rm.members))
	for connID, c := range rm.members {
		evicted = append(evicted, c)
		r.forgetLocked(id, connID)
	}

	r.log.Info().
		Str("room", string(id)).
		Int("evicted", len(evicted)).
		Msg("room closed")
	return evicted
}

// Members returns the current member count of a room (0 if unknown).
func (r *Registry) Members(id RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if rm, ok := r.rooms[id]; ok {
		return len(rm.members)
	}
	return 0
}

// Exists reports whether a room is currently open.
func (r *Registry) Exists(id RoomID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[id]
	return ok
}

// IsMember reports whether conn currently belongs to the room.
func (r *Registry) IsMember(id RoomID, conn Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.memberships[conn.ID()][id]
	return ok
}

// Stats returns the number of open rooms and distinct live connections.
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), len(r.memberships)
}

// Shutdown evicts every connection from every room and returns each distinct
// connection once. Ticket rooms are retired; the global room stays open but
// empty.
func (r *Registry) Shutdown() []Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]Connection{}
	for id, rm := range r.rooms {
		for connID, c := range rm.members {
			seen[connID] = c
		}
		if id == Global {
			rm.members = map[string]Connection{}
			continue
		}
		delete(r.rooms, id)
		r.retired[id] = struct{}{}
		roomsGauge.Dec()
	}
	connectionsGauge.Sub(float64(len(r.memberships)))
	r.memberships = map[string]map[RoomID]struct{}{}

	out := make([]Connection, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	r.log.Info().Int("connections", len(out)).Msg("registry shut down")
	return out
}
