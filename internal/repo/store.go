package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// Store binds the repository functions to one *gorm.DB so they can satisfy
// the storage interfaces declared by the dispatcher and the hub.
type Store struct {
	DB *gorm.DB
}

// NewStore returns a Store over db.
func NewStore(db *gorm.DB) *Store { return &Store{DB: db} }

func (s *Store) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	return GetUser(ctx, s.DB, id)
}

func (s *Store) OpenTicketCountByResponder(ctx context.Context) ([]domain.ResponderLoad, error) {
	return OpenTicketCountByResponder(ctx, s.DB)
}

func (s *Store) CreateTicket(ctx context.Context, t *domain.Ticket, report *domain.TicketReport, first *domain.Message) error {
	return CreateTicket(ctx, s.DB, t, report, first)
}

func (s *Store) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	return GetTicket(ctx, s.DB, id)
}

func (s *Store) ListOpenTickets(ctx context.Context) ([]domain.Ticket, error) {
	return ListOpenTickets(ctx, s.DB)
}

func (s *Store) ListOpenTicketsForUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	return ListOpenTicketsForUser(ctx, s.DB, userID)
}

func (s *Store) CloseTicket(ctx context.Context, id int64, at time.Time) error {
	return CloseTicket(ctx, s.DB, id, at)
}

func (s *Store) CreateMessage(ctx context.Context, m *domain.Message) error {
	return CreateMessage(ctx, s.DB, m)
}

func (s *Store) CreateSOS(ctx context.Context, sos *domain.SOS) error {
	return CreateSOS(ctx, s.DB, sos)
}

func (s *Store) CloseSOS(ctx context.Context, userID int64, at time.Time) (int64, error) {
	return CloseSOS(ctx, s.DB, userID, at)
}

func (s *Store) ListOpenSOS(ctx context.Context) ([]domain.SOS, error) {
	return ListOpenSOS(ctx, s.DB)
}

func (s *Store) ListGeoPoints(ctx context.Context) ([]domain.GeoPoint, error) {
	return ListGeoPoints(ctx, s.DB)
}

func (s *Store) ListRoomMessagesPage(ctx context.Context, room string, offset, limit int) ([]domain.Message, error) {
	return ListRoomMessagesPage(ctx, s.DB, room, offset, limit)
}

func (s *Store) CountRoomMessages(ctx context.Context, room string) (int64, error) {
	return CountRoomMessages(ctx, s.DB, room)
}

func (s *Store) RoomMessagesStats(ctx context.Context, room string) (int64, int64, error) {
	return RoomMessagesStats(ctx, s.DB, room)
}

func (s *Store) GetTicketReport(ctx context.Context, ticketID int64) (*domain.TicketReport, error) {
	return GetTicketReport(ctx, s.DB, ticketID)
}

func (s *Store) GetSOS(ctx context.Context, id int64) (*domain.SOS, error) {
	return GetSOS(ctx, s.DB, id)
}

func (s *Store) GetIdempotency(ctx context.Context, userID int64, scope, key string, now time.Time) (*domain.Idempotency, error) {
	return GetIdempotency(ctx, s.DB, userID, scope, key, now)
}

func (s *Store) CreateIdempotency(ctx context.Context, userID int64, scope, key string, recordID int64, status int, ttl time.Duration) (*domain.Idempotency, error) {
	return CreateIdempotency(ctx, s.DB, userID, scope, key, recordID, status, ttl)
}

func (s *Store) PurgeExpiredIdempotency(ctx context.Context, now time.Time) (int64, error) {
	return PurgeExpiredIdempotency(ctx, s.DB, now)
}
