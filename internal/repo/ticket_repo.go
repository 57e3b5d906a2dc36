// Tickets and their first reports. These functions take any *gorm.DB, so
// they work inside a transaction too; assignment and participant checks
// live in the dispatcher. A missing row is ErrNotFound, every other error
// is returned unchanged.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
	"github.com/tbourn/go-incident-hub/internal/realtime"
)

// CreateTicket inserts the ticket, its report and the opening message in a
// single transaction. Generated ids are written back into the arguments; the
// message is placed in the ticket's room.
func CreateTicket(ctx context.Context, db *gorm.DB, t *domain.Ticket, report *domain.TicketReport, first *domain.Message) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		t.CreatedAt, t.UpdatedAt = now, now
		if err := tx.Omit("Requester", "Responder").Create(t).Error; err != nil {
			return err
		}

		report.TicketID = t.ID
		report.CreatedAt = now
		if err := tx.Omit("Ticket").Create(report).Error; err != nil {
			return err
		}

		id := t.ID
		first.TicketID = &id
		first.Room = string(realtime.TicketRoom(t.ID))
		first.CreatedAt = now
		return tx.Omit("User").Create(first).Error
	})
}

// GetTicket fetches a ticket by id, or ErrNotFound.
func GetTicket(ctx context.Context, db *gorm.DB, id int64) (*domain.Ticket, error) {
	var t domain.Ticket
	if err := db.WithContext(ctx).Where("ticket_id = ?", id).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// GetTicketReport returns the initial report of a ticket, or ErrNotFound.
func GetTicketReport(ctx context.Context, db *gorm.DB, ticketID int64) (*domain.TicketReport, error) {
	var r domain.TicketReport
	if err := db.WithContext(ctx).Where("ticket_id = ?", ticketID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// ListOpenTickets returns every open ticket ordered by id.
func ListOpenTickets(ctx context.Context, db *gorm.DB) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Where("is_open = ?", true).
		Order("ticket_id ASC").
		Find(&out).Error
	return out, err
}

// ListOpenTicketsForUser returns open tickets in which userID is either the
// requester or the responder, newest first.
func ListOpenTicketsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := db.WithContext(ctx).
		Where("is_open = ? AND (user_id = ? OR teacher_id = ?)", true, userID, userID).
		Order("created_at DESC, ticket_id DESC").
		Find(&out).Error
	return out, err
}

// CloseTicket marks an open ticket closed. It returns ErrNotFound when no
// open ticket with that id exists.
func CloseTicket(ctx context.Context, db *gorm.DB, id int64, at time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.Ticket{}).
		Where("ticket_id = ? AND is_open = ?", id, true).
		Updates(map[string]any{"is_open": false, "closed_at": at, "updated_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// OpenTicketCountByResponder returns one row per responder with the number
// of open tickets assigned to them. Responders with no open tickets are
// included with a count of zero.
func OpenTicketCountByResponder(ctx context.Context, db *gorm.DB) ([]domain.ResponderLoad, error) {
	var out []domain.ResponderLoad
	err := db.WithContext(ctx).Raw(`
SELECT u.user_id AS teacher_id, COUNT(t.ticket_id) AS open_tickets
FROM users u
LEFT JOIN tickets t ON t.teacher_id = u.user_id AND t.is_open = ?
WHERE u.is_teacher = ?
GROUP BY u.user_id
ORDER BY u.user_id ASC`, true, true).Scan(&out).Error
	return out, err
}
