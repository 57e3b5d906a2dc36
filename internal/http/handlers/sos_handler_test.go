package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/http/middleware"
	"github.com/tbourn/go-incident-hub/internal/hub"
	"github.com/tbourn/go-incident-hub/internal/repo"
)

// stubHub answers the SOS events with canned results; every other Hub
// method panics through the nil embedded interface.
type stubHub struct {
	Hub
	sos      *domain.SOS
	msg      *domain.Message
	err      error
	closeErr error
}

func (s *stubHub) OnSOSCreate(context.Context, int64, float64, float64) (*domain.SOS, *domain.Message, error) {
	return s.sos, s.msg, s.err
}

func (s *stubHub) OnSOSClose(context.Context, int64) error { return s.closeErr }

func (e *testEnv) withHub(h Hub) {
	r := gin.New()
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	hs := New(h, repo.NewStore(e.db), Options{})
	r.POST("/sos", hs.CreateSOS)
	r.PATCH("/sos/close/:user_id", hs.CloseSOS)
	e.engine = r
}

func TestCreateSOS_StoredButNotPosted(t *testing.T) {
	e := newEnv(t, false)
	e.withHub(&stubHub{
		sos: &domain.SOS{ID: 7, UserID: e.requester.ID, Open: true},
		err: errors.New("persist message: disk I/O error"),
	})

	hdr := map[string]string{middleware.HeaderIdempotencyKey: "sos-unposted"}
	w := e.do(t, http.MethodPost, "/sos", CreateSOSRequest{UserID: e.requester.ID, Lat: 1, Long: 1}, hdr)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s; want 500", w.Code, w.Body.String())
	}
	if er := decodeErr(t, w); er.Code != ErrCodeInternal || er.Message != internalMessage {
		t.Fatalf("unexpected envelope: %+v", er)
	}
	if w.Header().Get("Idempotency-Replayed") != "" {
		t.Fatalf("failed create must not look replayed")
	}

	var n int64
	e.db.Model(&domain.Idempotency{}).Count(&n)
	if n != 0 {
		t.Fatalf("idempotency rows = %d; a failed create must not be replayable", n)
	}
}

func TestCloseSOS_NoticeNotPosted(t *testing.T) {
	e := newEnv(t, false)
	e.withHub(&stubHub{closeErr: errors.Join(hub.ErrNoticeNotPosted, errors.New("disk I/O error"))})

	w := e.do(t, http.MethodPatch, "/sos/close/"+id(e.requester.ID), nil, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d body=%s; want 500", w.Code, w.Body.String())
	}
	if er := decodeErr(t, w); er.Code != ErrCodeNoticeFailed {
		t.Fatalf("code = %q; want %q", er.Code, ErrCodeNoticeFailed)
	}
}
