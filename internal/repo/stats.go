// Aggregates used to build ETags for history and area endpoints.

package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// RoomMessagesStats returns the number of messages in a room and the id of
// the newest one. Messages are immutable, so the pair changes exactly when
// the room's history does. When the room is empty both values are 0.
func RoomMessagesStats(ctx context.Context, db *gorm.DB, room string) (count int64, lastID int64, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("room = ?", room)

	if err = q.Count(&count).Error; err != nil {
		return 0, 0, err
	}
	if count == 0 {
		return 0, 0, nil
	}

	var row struct {
		ID int64 `gorm:"column:message_id"`
	}
	if err = q.Select("message_id").Order("message_id DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, 0, err
	}
	return count, row.ID, nil
}
