package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// CreateSOS inserts an open SOS alert.
func CreateSOS(ctx context.Context, db *gorm.DB, s *domain.SOS) error {
	s.Open = true
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	return db.WithContext(ctx).Omit("User").Create(s).Error
}

// CloseSOS closes every open SOS raised by userID and returns how many were
// closed. Zero rows is reported as ErrNotFound.
func CloseSOS(ctx context.Context, db *gorm.DB, userID int64, at time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.SOS{}).
		Where("user_id = ? AND is_open = ?", userID, true).
		Updates(map[string]any{"is_open": false, "closed_at": at})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	return res.RowsAffected, nil
}

// ListOpenSOS returns open alerts, oldest first, with the raising user
// preloaded.
func ListOpenSOS(ctx context.Context, db *gorm.DB) ([]domain.SOS, error) {
	var out []domain.SOS
	err := db.WithContext(ctx).
		Preload("User").
		Where("is_open = ?", true).
		Order("created_at ASC, sos_id ASC").
		Find(&out).Error
	return out, err
}

// GetSOS fetches an alert by id, or ErrNotFound.
func GetSOS(ctx context.Context, db *gorm.DB, id int64) (*domain.SOS, error) {
	var s domain.SOS
	if err := db.WithContext(ctx).Where("sos_id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
