// Ticket HTTP handlers.
//
// This file exposes REST endpoints for help tickets:
//   - POST  /tickets                 (file a report, assign a responder)
//   - PATCH /tickets/{id}/close      (close a ticket and retire its room)
//   - GET   /tickets/{id}/messages   (paginated room history, ETag support)
//   - GET   /users/{id}/tickets      (open tickets of a requester or responder)
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// create exists for (user, route, key), the handler returns the recorded
// ticket and sets `Idempotency-Replayed: true` instead of dispatching again.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/dispatch"
	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/realtime"
	"github.com/tbourn/go-incident-hub/internal/utils"
)

//
// DTOs
//

// CreateTicketRequest is the JSON payload for filing a report.
type CreateTicketRequest struct {
	// UserID is the requester.
	UserID int64 `json:"user_id" binding:"required" example:"12"`
	// ReportText describes the incident. It becomes the first room message.
	ReportText string `json:"report_text" binding:"required" example:"Someone is following me near the library"`
	// Lat and Long locate the incident.
	Lat  float64 `json:"lat" example:"28.7974"`
	Long float64 `json:"long" example:"77.5369"`
	// IsAnonymous hides the requester's name from the responder.
	IsAnonymous bool `json:"is_anonymous" example:"false"`
}

// TicketResponse wraps a ticket with the room clients subscribe to and the
// report it was filed with.
type TicketResponse struct {
	Ticket *domain.Ticket       `json:"ticket"`
	Room   string               `json:"room" example:"ticket:41"`
	Report *domain.TicketReport `json:"report,omitempty"`
}

// ListTicketsResponse lists open tickets.
type ListTicketsResponse struct {
	Tickets []domain.Ticket `json:"tickets"`
}

// ListMessagesResponse contains a page of room messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []hub.MessageView `json:"messages"`
	Pagination Pagination        `json:"pagination"`
}

//
// Handlers
//

// CreateTicket godoc
// @ID          createTicket
// @Summary     File an incident report
// @Description Persists the report, assigns the least-loaded responder and opens the ticket room.
// @Description Supports idempotency via the Idempotency-Key header (same key → same ticket).
// @Tags        Tickets
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateTicketRequest  true  "Report payload"
//
// @Success     201  {object}  handlers.TicketResponse  "Ticket created"
// @Success     200  {object}  handlers.TicketResponse  "Replayed ticket"
// @Failure     400  {object}  handlers.ErrorResponse   "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse   "User not found"
// @Failure     503  {object}  handlers.ErrorResponse   "No responder available"
// @Failure     500  {object}  handlers.ErrorResponse   "Internal error"
// @Router      /tickets [post]
func (h *Handlers) CreateTicket(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id and report_text required")
		return
	}

	scope := c.FullPath()
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if prev, found := h.replayTicket(ctx, req.UserID, scope, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, h.ticketResponse(c, prev))
			return
		}
	}

	t, err := h.hub.OnTicketCreate(ctx, dispatch.NewTicket{
		RequesterID: req.UserID,
		ReportText:  req.ReportText,
		Lat:         req.Lat,
		Long:        req.Long,
		Anonymous:   req.IsAnonymous,
	})
	if err != nil {
		failErr(c, err)
		return
	}

	// Idempotency (store path) – best effort.
	if idemKey != "" {
		_, _ = h.store.CreateIdempotency(ctx, req.UserID, scope, idemKey, t.ID, http.StatusCreated, h.opts.IdempotencyTTL)
	}
	ok(c, http.StatusCreated, h.ticketResponse(c, t))
}

// ticketResponse attaches the stored report; a failed report read only
// leaves it out.
func (h *Handlers) ticketResponse(c *gin.Context, t *domain.Ticket) TicketResponse {
	resp := TicketResponse{Ticket: t, Room: string(realtime.TicketRoom(t.ID))}
	r, err := h.store.GetTicketReport(c.Request.Context(), t.ID)
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Int64("ticket_id", t.ID).Msg("ticket report not loaded")
		return resp
	}
	resp.Report = r
	return resp
}

func (h *Handlers) replayTicket(ctx context.Context, userID int64, scope, key string) (*domain.Ticket, bool) {
	rec, err := h.store.GetIdempotency(ctx, userID, scope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	t, err := h.store.GetTicket(ctx, rec.RecordID)
	if err != nil {
		return nil, false
	}
	return t, true
}

// CloseTicket godoc
// @ID          closeTicket
// @Summary     Close a ticket
// @Description Marks the ticket closed, evicts every member of its room and notifies them with a room_closed frame.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  int  true  "Ticket ID"  minimum(1)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     409  {object} handlers.ErrorResponse "Ticket already closed"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/close [patch]
func (h *Handlers) CloseTicket(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a positive integer")
		return
	}
	if err := h.hub.OnTicketClose(c.Request.Context(), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListTicketMessages godoc
// @ID          listTicketMessages
// @Summary     List messages of a ticket room
// @Description Returns a page of the ticket's room history, oldest first. Only the requester and the assigned responder may read it.
// @Description Anonymous requesters are rendered as "Anonymous". Supports weak ETag via If-None-Match.
// @Tags        Tickets
// @Produce     json
//
// @Param       X-User-ID      header  int     true  "Caller user ID"              example(12)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       id             path    int     true  "Ticket ID"                   minimum(1)
// @Param       page           query   int     false "Page number"                 minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"              minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     401  {object} handlers.ErrorResponse "Missing caller identity"
// @Failure     403  {object} handlers.ErrorResponse "Not a participant"
// @Failure     404  {object} handlers.ErrorResponse "Ticket not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /tickets/{id}/messages [get]
func (h *Handlers) ListTicketMessages(c *gin.Context) {
	ctx := c.Request.Context()
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "ticket id must be a positive integer")
		return
	}
	caller, known := callerID(c)
	if !known {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return
	}

	t, err := h.store.GetTicket(ctx, id)
	if err != nil {
		failErr(c, err)
		return
	}
	if caller != t.RequesterID && caller != t.ResponderID {
		failErr(c, dispatch.ErrNotParticipant)
		return
	}

	var hidden int64
	if t.Anonymous {
		hidden = t.RequesterID
	}
	h.roomHistory(c, realtime.TicketRoom(id), hidden)
}

// ListUserTickets godoc
// @ID          listUserTickets
// @Summary     List a user's open tickets
// @Description Returns open tickets where the user is the requester or the assigned responder, newest first.
// @Tags        Tickets
// @Produce     json
//
// @Param       id   path  int  true  "User ID"  minimum(1)
//
// @Success     200  {object} handlers.ListTicketsResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /users/{id}/tickets [get]
func (h *Handlers) ListUserTickets(c *gin.Context) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}
	items, err := h.store.ListOpenTicketsForUser(c.Request.Context(), id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if items == nil {
		items = []domain.Ticket{}
	}
	ok(c, http.StatusOK, ListTicketsResponse{Tickets: items})
}

// roomHistory writes one page of a room's messages. Messages by hiddenUser
// (when non-zero) are attributed to hub.AnonymousName.
func (h *Handlers) roomHistory(c *gin.Context, room realtime.RoomID, hiddenUser int64) {
	ctx := c.Request.Context()

	// Count and newest id are enough to tell whether the page changed.
	count, lastID, err := h.store.RoomMessagesStats(ctx, string(room))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	page, pageSize := clampPagination(c)
	etag := fmt.Sprintf(`W/"messages:%s:%d:%d:%d:%d"`, room, count, lastID, page, pageSize)
	if notModified(c, etag) {
		return
	}

	items, err := h.store.ListRoomMessagesPage(ctx, string(room), (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	views := make([]hub.MessageView, 0, len(items))
	for i := range items {
		m := &items[i]
		name := m.User.Name
		if hiddenUser != 0 && m.UserID == hiddenUser {
			name = hub.AnonymousName
		}
		views = append(views, hub.ViewOf(m, name))
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   views,
		Pagination: newPagination(page, pageSize, count),
	})
}
