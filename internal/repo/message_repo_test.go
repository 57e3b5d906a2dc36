package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

func TestCreateMessage_StampsCreatedAt(t *testing.T) {
	db := newTestDB(t, allModels...)
	u := seedUser(t, db, "u@x.io", false)

	m := &domain.Message{Room: "global", UserID: u.ID, Text: "hello"}
	if err := CreateMessage(context.Background(), db, m); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == 0 {
		t.Fatalf("id not assigned")
	}
	if m.CreatedAt.IsZero() || time.Since(m.CreatedAt) > time.Minute {
		t.Fatalf("CreatedAt not set reasonably: %v", m.CreatedAt)
	}
}

func TestListRoomMessagesPage_OrderPagingAndAuthor(t *testing.T) {
	db := newTestDB(t, allModels...)
	ctx := context.Background()
	u := seedUser(t, db, "author@x.io", false)

	// Same timestamp for every row: persistence order must still hold.
	at := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	var ids []int64
	for i := 0; i < 5; i++ {
		m := &domain.Message{Room: "global", UserID: u.ID, Text: fmt.Sprintf("m%d", i), CreatedAt: at}
		if err := CreateMessage(ctx, db, m); err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids = append(ids, m.ID)
	}
	_ = CreateMessage(ctx, db, &domain.Message{Room: "ticket:1", UserID: u.ID, Text: "other"})

	page, err := ListRoomMessagesPage(ctx, db, "global", 1, 3)
	if err != nil {
		t.Fatalf("ListRoomMessagesPage: %v", err)
	}
	if len(page) != 3 || page[0].ID != ids[1] || page[2].ID != ids[3] {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page[0].User.Name != "author@x.io" {
		t.Fatalf("author not preloaded: %+v", page[0].User)
	}

	total, err := CountRoomMessages(ctx, db, "global")
	if err != nil || total != 5 {
		t.Fatalf("CountRoomMessages = %d, %v; want 5", total, err)
	}
}

func TestCountRoomMessages_Error_NoTable(t *testing.T) {
	db := newTestDB(t /* no migration */)
	if _, err := CountRoomMessages(context.Background(), db, "global"); err == nil {
		t.Fatalf("expected error due to missing messages table")
	}
}
