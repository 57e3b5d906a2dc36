// Websocket handlers.
//
//   - GET /ws/community/{user_id}              (global room)
//   - GET /ws/tickets/{ticket_id}/{user_id}    (global room + ticket room)
//
// Admission is checked before the upgrade so refusals are plain HTTP errors.
// Every inbound text frame is chat text for the session's room; frames the
// hub rejects are answered with an "error" envelope on the same socket.
// Each frame is traced as its own root span linked to the upgrade request.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/utils"
	"github.com/tbourn/go-incident-hub/internal/ws"
)

// CommunityWS godoc
// @ID          communityWS
// @Summary     Community websocket
// @Description Upgrades to a websocket joined to the global room. Inbound text frames are posted as community messages.
// @Tags        Realtime
//
// @Param       user_id  path  int  true  "User ID"  minimum(1)
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "User not found"
// @Router      /ws/community/{user_id} [get]
func (h *Handlers) CommunityWS(c *gin.Context) {
	uid, valid := utils.ParseID(c.Param("user_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}
	h.serveWS(c, hub.ConnectRequest{Kind: hub.ConnectCommunity}, uid, realtime.Global)
}

// TicketWS godoc
// @ID          ticketWS
// @Summary     Ticket websocket
// @Description Upgrades to a websocket joined to the ticket room and the global room. Only the requester and the assigned responder of an open ticket are admitted.
// @Description Inbound text frames are posted to the ticket room. The server sends room_closed when the ticket closes.
// @Tags        Realtime
//
// @Param       ticket_id  path  int  true  "Ticket ID"  minimum(1)
// @Param       user_id    path  int  true  "User ID"    minimum(1)
//
// @Success     101  {string} string "Switching Protocols"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     403  {object} handlers.ErrorResponse "Ticket closed or not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Ticket or user not found"
// @Router      /ws/tickets/{ticket_id}/{user_id} [get]
func (h *Handlers) TicketWS(c *gin.Context) {
	tid, okT := utils.ParseID(c.Param("ticket_id"))
	uid, okU := utils.ParseID(c.Param("user_id"))
	if !okT || !okU {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id and user id must be positive integers")
		return
	}
	h.serveWS(c, hub.ConnectRequest{Kind: hub.ConnectTicket, TicketID: tid}, uid, realtime.TicketRoom(tid))
}

func (h *Handlers) serveWS(c *gin.Context, req hub.ConnectRequest, uid int64, room realtime.RoomID) {
	ctx := c.Request.Context()
	if err := h.hub.Admit(ctx, req, uid); err != nil {
		failErr(c, err)
		return
	}

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader already wrote an HTTP error.
		middleware.LoggerFrom(c).Debug().Err(err).Msg("websocket upgrade failed")
		c.Abort()
		return
	}

	lg := middleware.LoggerFrom(c)
	conn := ws.NewConn(wsConn, uid, h.opts.WS, lg)
	if err := h.hub.OnConnect(ctx, req, conn); err != nil {
		// Lost a race with a ticket close after Admit.
		_ = conn.Send(hub.ErrorFrame(string(room), err))
		_ = conn.Close()
		conn.Run(func([]byte) {}, nil)
		return
	}

	conn.Run(func(data []byte) {
		fctx, span := frameSpan(ctx, room, uid)
		defer span.End()
		if _, err := h.hub.OnMessage(fctx, room, uid, string(data)); err != nil {
			span.RecordError(err)
			_ = conn.Send(hub.ErrorFrame(string(room), err))
		}
	}, func() {
		h.hub.OnDisconnect(conn)
	})
}

// frameSpan starts a root span for one inbound frame, linked to the span of
// the session's upgrade request.
func frameSpan(session context.Context, room realtime.RoomID, uid int64) (context.Context, trace.Span) {
	return otel.Tracer("http/ws").Start(session, "ws.frame",
		trace.WithNewRoot(),
		trace.WithLinks(trace.LinkFromContext(session)),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("room", string(room)),
			attribute.Int64("user.id", uid),
		),
	)
}
