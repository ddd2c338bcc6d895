package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database"
)

var _ database.VenueCache = (*VenueCache)(nil)

// cacheKey is the single record holding the whole venue set.
const cacheKey = "bar_locations"

type VenueCache struct {
	db *sql.DB
}

func NewVenueCache(db *sql.DB) *VenueCache {
	return &VenueCache{db: db}
}

func (c *VenueCache) Migrate(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS venue_cache (
		cache_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`)
	return err
}

func (c *VenueCache) SaveVenues(ctx context.Context, venues []domain.Venue) error {
	if venues == nil {
		venues = []domain.Venue{}
	}
	payload, err := json.Marshal(venues)
	if err != nil {
		return fmt.Errorf("marshal venues: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO venue_cache (cache_key, payload, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		cacheKey, string(payload), time.Now().UTC(),
	)
	return err
}

func (c *VenueCache) LoadVenues(ctx context.Context) ([]domain.Venue, error) {
	var payload string
	err := c.db.QueryRowContext(ctx,
		`SELECT payload FROM venue_cache WHERE cache_key = ?`,
		cacheKey,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var venues []domain.Venue
	if err := json.Unmarshal([]byte(payload), &venues); err != nil {
		return nil, fmt.Errorf("decode venue cache: %w", err)
	}
	return venues, nil
}
