package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/tbourn/go-incident-hub/internal/dispatch"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/repo"
)

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{dispatch.ErrAlreadyClosed, http.StatusConflict, ErrCodeAlreadyClosed},
		{dispatch.ErrTicketNotFound, http.StatusNotFound, ErrCodeNotFound},
		{hub.ErrUserNotFound, http.StatusNotFound, ErrCodeNotFound},
		{hub.ErrNoOpenSOS, http.StatusNotFound, ErrCodeNotFound},
		{fmt.Errorf("load: %w", repo.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{dispatch.ErrTicketClosed, http.StatusForbidden, ErrCodeForbidden},
		{dispatch.ErrNotParticipant, http.StatusForbidden, ErrCodeForbidden},
		{dispatch.ErrNoResponderAvailable, http.StatusServiceUnavailable, ErrCodeNoResponder},
		{dispatch.ErrInvalidTicket, http.StatusBadRequest, ErrCodeBadRequest},
		{hub.ErrEmptyMessage, http.StatusBadRequest, ErrCodeBadRequest},
		{hub.ErrMessageTooLong, http.StatusBadRequest, ErrCodeBadRequest},
		{hub.ErrInvalidCoordinates, http.StatusBadRequest, ErrCodeBadRequest},
		{fmt.Errorf("%w: %w", hub.ErrNoticeNotPosted, repo.ErrNotFound), http.StatusInternalServerError, ErrCodeNoticeFailed},
		{errors.New("disk I/O error"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		status, code := statusOf(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("statusOf(%v) = (%d, %q); want (%d, %q)", tc.err, status, code, tc.status, tc.code)
		}
	}
}

func TestOriginChecker(t *testing.T) {
	open := originChecker(nil)
	strict := originChecker([]string{"https://app.example"})

	req, _ := http.NewRequest(http.MethodGet, "/ws/community/1", nil)
	if !open(req) || !strict(req) {
		t.Fatalf("requests without Origin must be allowed")
	}
	req.Header.Set("Origin", "https://evil.example")
	if !open(req) || strict(req) {
		t.Fatalf("allowlist not applied: open=%v strict=%v", open(req), strict(req))
	}
	req.Header.Set("Origin", "https://app.example")
	if !strict(req) {
		t.Fatalf("allowed origin rejected")
	}
}
