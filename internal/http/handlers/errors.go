// Error codes give clients something stable to switch on; the message is
// for people. Generic codes mirror their HTTP status and the domain ones
// (no_responder, already_closed, notice_failed) carry what the status alone
// cannot. notice_failed is a 500 whose action did commit: an SOS close that
// must not be retried.

package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/dispatch"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/repo"
)

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
	ErrCodeUnavailable  = "unavailable"

	// Domain-specific:
	ErrCodeNoResponder      = "no_responder"
	ErrCodeAlreadyClosed    = "already_closed"
	ErrCodeNoticeFailed     = "notice_failed"
	ErrCodeCreateFailed     = "create_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// statusOf maps a core error to an HTTP status and error code. Order matters:
// ErrAlreadyClosed wraps ErrTicketNotFound and must be matched first.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, dispatch.ErrAlreadyClosed):
		return http.StatusConflict, ErrCodeAlreadyClosed
	case errors.Is(err, hub.ErrNoticeNotPosted):
		return http.StatusInternalServerError, ErrCodeNoticeFailed
	case errors.Is(err, dispatch.ErrTicketNotFound),
		errors.Is(err, hub.ErrUserNotFound),
		errors.Is(err, hub.ErrNoOpenSOS),
		errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound
	case errors.Is(err, dispatch.ErrUnauthorized):
		return http.StatusForbidden, ErrCodeForbidden
	case errors.Is(err, dispatch.ErrNoResponderAvailable):
		return http.StatusServiceUnavailable, ErrCodeNoResponder
	case errors.Is(err, dispatch.ErrInvalidTicket),
		errors.Is(err, hub.ErrEmptyMessage),
		errors.Is(err, hub.ErrMessageTooLong),
		errors.Is(err, hub.ErrInvalidCoordinates),
		errors.Is(err, hub.ErrUnknownRoom):
		return http.StatusBadRequest, ErrCodeBadRequest
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// failErr writes the envelope for err.
func failErr(c *gin.Context, err error) {
	status, code := statusOf(err)
	fail(c, status, code, err.Error())
}
