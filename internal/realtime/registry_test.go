package realtime

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ----- fake connection -----

type fakeConn struct {
	id  string
	uid int64

	mu     sync.Mutex
	got    [][]byte
	fail   error
	onSend func()
}

func newConn(id string, uid int64) *fakeConn { return &fakeConn{id: id, uid: uid} }

func (c *fakeConn) ID() string    { return c.id }
func (c *fakeConn) UserID() int64 { return c.uid }

func (c *fakeConn) Send(p []byte) error {
	if c.onSend != nil {
		c.onSend()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.got = append(c.got, p)
	return nil
}

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.got))
	for i, p := range c.got {
		out[i] = string(p)
	}
	return out
}

// ----- tests -----

func TestRoomID_TicketRoundTrip(t *testing.T) {
	id := TicketRoom(42)
	if id != "ticket:42" {
		t.Fatalf("TicketRoom(42) = %q", id)
	}
	if got, ok := id.TicketID(); !ok || got != 42 {
		t.Fatalf("TicketID() = %d,%v; want 42,true", got, ok)
	}
	for _, bad := range []RoomID{Global, "ticket:", "ticket:x", "ticket:-3", "room:1"} {
		if _, ok := bad.TicketID(); ok {
			t.Errorf("%q parsed as ticket room", bad)
		}
	}
	if Global.Kind() != "global" || id.Kind() != "ticket" {
		t.Fatalf("unexpected kinds: %q %q", Global.Kind(), id.Kind())
	}
}

func TestJoin_IdempotentAndGlobalAlwaysOpen(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)

	added, err := r.Join(Global, a)
	if err != nil || !added {
		t.Fatalf("first join: added=%v err=%v", added, err)
	}
	added, err = r.Join(Global, a)
	if err != nil || added {
		t.Fatalf("duplicate join should be a silent no-op: added=%v err=%v", added, err)
	}
	if n := r.Members(Global); n != 1 {
		t.Fatalf("members = %d; want 1", n)
	}
}

func TestJoin_UnknownAndRetiredRooms(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)

	if _, err := r.Join(TicketRoom(1), a); !errors.Is(err, ErrRoomNotFound) {
		t.Fatalf("join unopened room: err=%v; want ErrRoomNotFound", err)
	}

	if err := r.OpenRoom(TicketRoom(1)); err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	if err := r.OpenRoom(TicketRoom(1)); err != nil {
		t.Fatalf("OpenRoom twice should be a no-op: %v", err)
	}
	if _, err := r.Join(TicketRoom(1), a); err != nil {
		t.Fatalf("join open room: %v", err)
	}

	evicted := r.CloseRoom(TicketRoom(1))
	if len(evicted) != 1 || evicted[0].ID() != "a" {
		t.Fatalf("evicted = %v; want [a]", evicted)
	}

	// Old membership never reappears: the id is retired.
	if _, err := r.Join(TicketRoom(1), a); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("join after close: err=%v; want ErrRoomClosed", err)
	}
	if err := r.OpenRoom(TicketRoom(1)); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("reopen retired room: err=%v; want ErrRoomClosed", err)
	}
	if r.IsMember(TicketRoom(1), a) {
		t.Fatalf("connection still member of closed room")
	}
	if n := r.Members(TicketRoom(1)); n != 0 {
		t.Fatalf("members of closed room = %d", n)
	}
}

func TestJoin_AtMostOneTicketRoom(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	_ = r.OpenRoom(TicketRoom(1))
	_ = r.OpenRoom(TicketRoom(2))

	if _, err := r.Join(Global, a); err != nil {
		t.Fatalf("join global: %v", err)
	}
	if _, err := r.Join(TicketRoom(1), a); err != nil {
		t.Fatalf("join ticket 1: %v", err)
	}
	if _, err := r.Join(TicketRoom(2), a); !errors.Is(err, ErrTicketRoomLimit) {
		t.Fatalf("join ticket 2: err=%v; want ErrTicketRoomLimit", err)
	}
	// Re-joining the same ticket room stays idempotent.
	if added, err := r.Join(TicketRoom(1), a); err != nil || added {
		t.Fatalf("rejoin ticket 1: added=%v err=%v", added, err)
	}

	r.Leave(TicketRoom(1), a)
	if _, err := r.Join(TicketRoom(2), a); err != nil {
		t.Fatalf("join ticket 2 after leaving 1: %v", err)
	}
}

func TestLeave_NonMemberIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	if r.Leave(Global, a) {
		t.Fatalf("leave of non-member reported removal")
	}
	if r.Leave(TicketRoom(9), a) {
		t.Fatalf("leave of unknown room reported removal")
	}
	_, _ = r.Join(Global, a)
	if !r.Leave(Global, a) {
		t.Fatalf("leave of member not reported")
	}
	if _, conns := r.Stats(); conns != 0 {
		t.Fatalf("connections = %d after leaving last room", conns)
	}
}

func TestLeaveAll_RemovesEveryMembership(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	b := newConn("b", 2)
	_ = r.OpenRoom(TicketRoom(5))
	_, _ = r.Join(Global, a)
	_, _ = r.Join(TicketRoom(5), a)
	_, _ = r.Join(Global, b)

	left := r.LeaveAll(a)
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	if len(left) != 2 || left[0] != Global || left[1] != TicketRoom(5) {
		t.Fatalf("LeaveAll = %v; want [global ticket:5]", left)
	}
	if r.IsMember(Global, a) || r.IsMember(TicketRoom(5), a) {
		t.Fatalf("connection still a member after LeaveAll")
	}
	if !r.IsMember(Global, b) {
		t.Fatalf("other connection affected by LeaveAll")
	}
	if got := r.LeaveAll(a); len(got) != 0 {
		t.Fatalf("second LeaveAll = %v; want empty", got)
	}
}

func TestBroadcast_ReachesSnapshotOnly(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	b := newConn("b", 2)
	late := newConn("late", 3)

	_, _ = r.Join(Global, a)
	_, _ = r.Join(Global, b)

	// late joins while the broadcast is in progress, after the snapshot.
	a.onSend = func() { _, _ = r.Join(Global, late) }

	rep := r.Broadcast(Global, []byte("m1"))
	if rep.Delivered != 2 || len(rep.Failed) != 0 {
		t.Fatalf("report = %+v; want 2 delivered", rep)
	}
	if len(late.received()) != 0 {
		t.Fatalf("late joiner received %v", late.received())
	}
	if !r.IsMember(Global, late) {
		t.Fatalf("late joiner should be a member for later broadcasts")
	}

	a.onSend = nil
	r.Broadcast(Global, []byte("m2"))
	if got := late.received(); len(got) != 1 || got[0] != "m2" {
		t.Fatalf("late joiner got %v; want [m2]", got)
	}
	if got := b.received(); len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("b got %v; want [m1 m2]", got)
	}
}

func TestBroadcast_FailedMemberIsIsolatedAndRemoved(t *testing.T) {
	r := NewRegistry(nil)
	good1 := newConn("g1", 1)
	bad := newConn("bad", 2)
	bad.fail = errors.New("broken pipe")
	good2 := newConn("g2", 3)
	for _, c := range []*fakeConn{good1, bad, good2} {
		_, _ = r.Join(Global, c)
	}

	before := testutil.ToFloat64(deliveryFailures)
	rep := r.Broadcast(Global, []byte("hello"))

	if rep.Delivered != 2 {
		t.Fatalf("delivered = %d; want 2", rep.Delivered)
	}
	if len(rep.Failed) != 1 || rep.Failed[0].ID() != "bad" {
		t.Fatalf("failed = %v; want [bad]", rep.Failed)
	}
	if r.IsMember(Global, bad) {
		t.Fatalf("failed member should be removed")
	}
	if len(good1.received()) != 1 || len(good2.received()) != 1 {
		t.Fatalf("healthy members did not receive payload")
	}
	if got := testutil.ToFloat64(deliveryFailures); got != before+1 {
		t.Fatalf("delivery failures = %v; want %v", got, before+1)
	}
}

func TestBroadcast_UnknownRoomDeliversNothing(t *testing.T) {
	r := NewRegistry(nil)
	before := testutil.ToFloat64(broadcastsTotal.WithLabelValues("ticket"))
	rep := r.Broadcast(TicketRoom(77), []byte("x"))
	if rep.Delivered != 0 || len(rep.Failed) != 0 {
		t.Fatalf("report = %+v; want empty", rep)
	}
	if got := testutil.ToFloat64(broadcastsTotal.WithLabelValues("ticket")); got != before {
		t.Fatalf("broadcast counter moved for unknown room")
	}
}

func TestCloseRoom_NoopCases(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	_, _ = r.Join(Global, a)

	if ev := r.CloseRoom(TicketRoom(404)); ev != nil {
		t.Fatalf("closing unknown room evicted %v", ev)
	}
	if ev := r.CloseRoom(Global); ev != nil {
		t.Fatalf("global room must not close, evicted %v", ev)
	}
	if !r.IsMember(Global, a) {
		t.Fatalf("global membership lost")
	}
}

func TestCloseRoom_KeepsGlobalMembership(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	_ = r.OpenRoom(TicketRoom(3))
	_, _ = r.Join(Global, a)
	_, _ = r.Join(TicketRoom(3), a)

	if !r.Exists(TicketRoom(3)) {
		t.Fatalf("ticket room should exist before close")
	}
	r.CloseRoom(TicketRoom(3))
	if r.Exists(TicketRoom(3)) || !r.Exists(Global) {
		t.Fatalf("Exists after close: ticket=%v global=%v", r.Exists(TicketRoom(3)), r.Exists(Global))
	}
	if !r.IsMember(Global, a) {
		t.Fatalf("closing a ticket room must not evict from global")
	}
	if left := r.LeaveAll(a); len(left) != 1 || left[0] != Global {
		t.Fatalf("LeaveAll after close = %v; want [global]", left)
	}
}

func TestShutdown_EvictsEveryoneOnce(t *testing.T) {
	r := NewRegistry(nil)
	a := newConn("a", 1)
	b := newConn("b", 2)
	_ = r.OpenRoom(TicketRoom(1))
	_, _ = r.Join(Global, a)
	_, _ = r.Join(TicketRoom(1), a)
	_, _ = r.Join(Global, b)

	out := r.Shutdown()
	if len(out) != 2 {
		t.Fatalf("shutdown returned %d connections; want 2", len(out))
	}
	rooms, conns := r.Stats()
	if rooms != 1 || conns != 0 {
		t.Fatalf("after shutdown rooms=%d conns=%d; want 1,0", rooms, conns)
	}
	if _, err := r.Join(TicketRoom(1), a); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("ticket room should be retired after shutdown, err=%v", err)
	}
}

func TestRegistry_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	r := NewRegistry(nil)
	_ = r.OpenRoom(TicketRoom(1))

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := newConn(fmt.Sprintf("c%d", i), int64(i))
			for j := 0; j < 200; j++ {
				_, _ = r.Join(Global, c)
				_, _ = r.Join(TicketRoom(1), c)
				r.Broadcast(Global, []byte("x"))
				r.Broadcast(TicketRoom(1), []byte("y"))
				if j%3 == 0 {
					r.LeaveAll(c)
				} else {
					r.Leave(TicketRoom(1), c)
				}
			}
			r.LeaveAll(c)
		}(i)
	}
	wg.Wait()

	if n := r.Members(Global); n != 0 {
		t.Fatalf("global members = %d after all left", n)
	}
	if _, conns := r.Stats(); conns != 0 {
		t.Fatalf("connections = %d after all left", conns)
	}
}
