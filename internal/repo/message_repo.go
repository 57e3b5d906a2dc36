// Room history: ticket chats and the community room share one table.

package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// CreateMessage inserts a message. CreatedAt is stamped in UTC when unset.
func CreateMessage(ctx context.Context, db *gorm.DB, m *domain.Message) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("User").Create(m).Error
}

// CountRoomMessages uses a raw COUNT so a missing table surfaces as an error.
func CountRoomMessages(ctx context.Context, db *gorm.DB, room string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw("SELECT COUNT(*) FROM messages WHERE room = ?", room).Scan(&total).Error
	return total, err
}

// ListRoomMessagesPage returns a page of a room's history in persistence
// order (message_id ASC) with the author preloaded.
func ListRoomMessagesPage(ctx context.Context, db *gorm.DB, room string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Preload("User").
		Where("room = ?", room).
		Order("message_id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}
