package postgres

import (
	"context"
	"database/sql"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database"
)

var _ database.VenueSource = (*VenueRepo)(nil)

// VenueRepo reads venue locations straight from the backend database.
type VenueRepo struct {
	db *sql.DB
}

func NewVenueRepo(db *sql.DB) *VenueRepo {
	return &VenueRepo{db: db}
}

func (r *VenueRepo) FetchVenues(ctx context.Context) ([]domain.Venue, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, latitude, longitude FROM app_bar WHERE is_active = TRUE AND latitude IS NOT NULL AND longitude IS NOT NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []domain.Venue
	for rows.Next() {
		var v domain.Venue
		if err := rows.Scan(&v.ID, &v.Latitude, &v.Longitude); err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	return results, rows.Err()
}
