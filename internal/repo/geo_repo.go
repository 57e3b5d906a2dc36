package repo

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/tbourn/go-incident-hub/internal/domain"
)

// Point kinds reported by ListGeoPoints.
const (
	PointSOS    = "sos"
	PointReport = "report"
)

// ListGeoPoints returns the location of every SOS alert (open or closed) and
// every ticket report, merged into one sequence ordered by creation time.
// Rows created in the same instant keep SOS before reports, then id order.
func ListGeoPoints(ctx context.Context, db *gorm.DB) ([]domain.GeoPoint, error) {
	var sos []domain.GeoPoint
	err := db.WithContext(ctx).
		Model(&domain.SOS{}).
		Select("? AS kind, lat, long, created_at", PointSOS).
		Order("created_at ASC, sos_id ASC").
		Scan(&sos).Error
	if err != nil {
		return nil, err
	}

	var reports []domain.GeoPoint
	err = db.WithContext(ctx).
		Model(&domain.TicketReport{}).
		Select("? AS kind, lat, long, created_at", PointReport).
		Order("created_at ASC, report_id ASC").
		Scan(&reports).Error
	if err != nil {
		return nil, err
	}

	out := append(sos, reports...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
