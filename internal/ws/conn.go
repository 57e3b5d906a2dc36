// Package ws adapts a gorilla/websocket connection to the realtime
// Connection contract. Each session runs a read pump (inbound frames,
// pong-driven read deadlines) and a write pump (outbound queue, periodic
// pings). Send never blocks: payloads are queued on a bounded buffer and a
// full buffer is reported as an error so the registry can evict the session.
package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("connection closed")

	// ErrSendBufferFull is returned when the peer is not draining its queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Options tunes one session. Zero fields take the defaults below.
type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	WriteWait       time.Duration
	PongWait        time.Duration
}

const (
	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 8192
	defaultWriteWait       = 10 * time.Second
	defaultPongWait        = 60 * time.Second
)

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = defaultMaxMessageBytes
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	return o
}

// pingPeriod must stay below PongWait so the peer's pong arrives in time.
func (o Options) pingPeriod() time.Duration { return (o.PongWait * 9) / 10 }

// Conn is one websocket session bound to an authenticated user.
type Conn struct {
	id     string
	userID int64
	ws     *websocket.Conn
	opts   Options

	mu     sync.Mutex
	send   chan []byte
	closed bool

	done chan struct{}
	log  zerolog.Logger
}

// NewConn wraps an upgraded websocket. Call Run to start the pumps.
func NewConn(wsConn *websocket.Conn, userID int64, opts Options, logger *zerolog.Logger) *Conn {
	lg := log.Logger
	if logger != nil {
		lg = *logger
	}
	opts = opts.withDefaults()
	id := uuid.NewString()
	return &Conn{
		id:     id,
		userID: userID,
		ws:     wsConn,
		opts:   opts,
		send:   make(chan []byte, opts.SendBuffer),
		done:   make(chan struct{}),
		log: lg.With().
			Str("component", "ws").
			Str("conn_id", id).
			Int64("user_id", userID).
			Logger(),
	}
}

func (c *Conn) ID() string    { return c.id }
func (c *Conn) UserID() int64 { return c.userID }

// Send queues payload for the write pump.
func (c *Conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close stops accepting payloads. The write pump flushes what is already
// queued, sends a close frame and tears the socket down. Close is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// Run starts the write pump and runs the read pump on the calling goroutine
// until the peer goes away. onFrame receives every inbound text frame;
// onClose runs once after the read side ends, before the queue is closed.
func (c *Conn) Run(onFrame func(data []byte), onClose func()) {
	go c.writePump()

	c.readPump(onFrame)
	if onClose != nil {
		onClose()
	}
	_ = c.Close()
	<-c.done
}

func (c *Conn) readPump(onFrame func([]byte)) {
	c.ws.SetReadLimit(c.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		onFrame(data)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
