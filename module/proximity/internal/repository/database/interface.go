package database

import (
	"context"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

type VenueCache interface {
	SaveVenues(ctx context.Context, venues []domain.Venue) error
	LoadVenues(ctx context.Context) ([]domain.Venue, error)
}

type VenueSource interface {
	FetchVenues(ctx context.Context) ([]domain.Venue, error)
}
