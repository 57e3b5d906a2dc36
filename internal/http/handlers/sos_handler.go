// SOS HTTP handlers.
//
//   - POST  /sos                  (raise an alert, post it to the community room)
//   - PATCH /sos/close/{user_id}  (resolve every open alert of a user)
//   - GET   /sos                  (open alerts)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/utils"
)

// CreateSOSRequest is the JSON payload for raising an alert.
type CreateSOSRequest struct {
	UserID int64   `json:"user_id" binding:"required" example:"12"`
	Lat    float64 `json:"lat" example:"28.7974"`
	Long   float64 `json:"long" example:"77.5369"`
}

// SOSResponse is a raised alert and, when freshly created, the community
// message that announced it.
type SOSResponse struct {
	SOS     *domain.SOS     `json:"sos"`
	Message *domain.Message `json:"message,omitempty"`
}

// SOSView is an open alert together with who raised it.
type SOSView struct {
	domain.SOS
	Name    string `json:"name" example:"Riya"`
	Phone   string `json:"phone_number" example:"+91-555-0100"`
	MapLink string `json:"map_link" example:"https://www.google.com/maps/search/?api=1&query=28.7974,77.5369"`
}

// ListSOSResponse lists open alerts.
type ListSOSResponse struct {
	SOS []SOSView `json:"sos"`
}

// CreateSOS godoc
// @ID          createSOS
// @Summary     Raise an SOS
// @Description Records the alert and posts an urgent message with a map link and contact details to the community room.
// @Description Supports idempotency via the Idempotency-Key header.
// @Tags        SOS
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"
// @Param       body             body    handlers.CreateSOSRequest  true  "Alert payload"
//
// @Success     201  {object}  handlers.SOSResponse
// @Success     200  {object}  handlers.SOSResponse    "Replayed alert"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /sos [post]
func (h *Handlers) CreateSOS(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreateSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user_id, lat and long required")
		return
	}

	scope := c.FullPath()
	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" {
		if prev, found := h.replaySOS(ctx, req.UserID, scope, idemKey); found {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, SOSResponse{SOS: prev})
			return
		}
	}

	sos, msg, err := h.hub.OnSOSCreate(ctx, req.UserID, req.Lat, req.Long)
	if err != nil {
		// An alert that was stored but never posted still fails the create.
		if sos != nil {
			middleware.LoggerFrom(c).Error().Err(err).Int64("sos_id", sos.ID).Msg("sos stored but alert not posted")
		}
		failErr(c, err)
		return
	}

	if idemKey != "" {
		_, _ = h.store.CreateIdempotency(ctx, req.UserID, scope, idemKey, sos.ID, http.StatusCreated, h.opts.IdempotencyTTL)
	}
	ok(c, http.StatusCreated, SOSResponse{SOS: sos, Message: msg})
}

func (h *Handlers) replaySOS(ctx context.Context, userID int64, scope, key string) (*domain.SOS, bool) {
	rec, err := h.store.GetIdempotency(ctx, userID, scope, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	s, err := h.store.GetSOS(ctx, rec.RecordID)
	if err != nil {
		return nil, false
	}
	return s, true
}

// CloseSOS godoc
// @ID          closeSOS
// @Summary     Resolve a user's SOS
// @Description Closes every open alert of the user and tells the community room they are safe.
// @Tags        SOS
// @Produce     json
//
// @Param       user_id  path  int  true  "User ID"  minimum(1)
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "No open SOS or unknown user"
// @Failure     500  {object} handlers.ErrorResponse "Internal error; code notice_failed means the alerts were resolved but the notice was not posted"
// @Router      /sos/close/{user_id} [patch]
func (h *Handlers) CloseSOS(c *gin.Context) {
	uid, valid := utils.ParseID(c.Param("user_id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a positive integer")
		return
	}
	if err := h.hub.OnSOSClose(c.Request.Context(), uid); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// ListSOS godoc
// @ID          listSOS
// @Summary     List open SOS alerts
// @Tags        SOS
// @Produce     json
//
// @Success     200  {object} handlers.ListSOSResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /sos [get]
func (h *Handlers) ListSOS(c *gin.Context) {
	items, err := h.store.ListOpenSOS(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	out := make([]SOSView, 0, len(items))
	for _, s := range items {
		out = append(out, SOSView{
			SOS:     s,
			Name:    s.User.Name,
			Phone:   s.User.Phone,
			MapLink: mapLink(s.Lat, s.Long),
		})
	}
	ok(c, http.StatusOK, ListSOSResponse{SOS: out})
}
