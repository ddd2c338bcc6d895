package service

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
	"github.com/lhakso/bar-tracker/module/proximity/internal/repository/database"
)

type VenueFetcher interface {
	FetchVenues(ctx context.Context) ([]domain.Venue, error)
}

// VenueRegistry holds the current venue set. A new set always replaces the
// previous one as a whole and is persisted before it becomes visible.
type VenueRegistry struct {
	cache database.VenueCache
	log   logrus.FieldLogger

	mu     sync.RWMutex
	venues []domain.Venue
}

func NewVenueRegistry(cache database.VenueCache, log logrus.FieldLogger) *VenueRegistry {
	return &VenueRegistry{cache: cache, log: log}
}

func (r *VenueRegistry) Venues() []domain.Venue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.venues)
}

// Restore loads the persisted venue set so geofences can be rebuilt without
// a network round trip.
func (r *VenueRegistry) Restore(ctx context.Context) ([]domain.Venue, error) {
	venues, err := r.cache.LoadVenues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load venue cache: %w", err)
	}

	r.mu.Lock()
	r.venues = normalizeVenues(venues)
	out := slices.Clone(r.venues)
	r.mu.Unlock()

	r.log.WithField("venues", len(out)).Info("venue cache restored")
	return out, nil
}

func (r *VenueRegistry) Replace(ctx context.Context, venues []domain.Venue) (bool, error) {
	next := normalizeVenues(venues)

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.Equal(next, r.venues) {
		return false, nil
	}
	if err := r.cache.SaveVenues(ctx, next); err != nil {
		return false, fmt.Errorf("save venue cache: %w", err)
	}
	r.venues = next
	return true, nil
}

// normalizeVenues sorts by id; for a duplicated id the last entry wins.
func normalizeVenues(venues []domain.Venue) []domain.Venue {
	byID := make(map[int64]domain.Venue, len(venues))
	for _, v := range venues {
		byID[v.ID] = v
	}
	out := make([]domain.Venue, 0, len(byID))
	for _, v := range byID {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Venue) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// VenueRefresher pulls a fresh venue set and hands changes to the engine.
type VenueRefresher struct {
	fetcher  VenueFetcher
	registry *VenueRegistry
	notify   func(domain.Event)
	log      logrus.FieldLogger

	mu sync.Mutex
}

func NewVenueRefresher(fetcher VenueFetcher, registry *VenueRegistry, notify func(domain.Event), log logrus.FieldLogger) *VenueRefresher {
	return &VenueRefresher{
		fetcher:  fetcher,
		registry: registry,
		notify:   notify,
		log:      log,
	}
}

func (r *VenueRefresher) Refresh(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	venues, err := r.fetcher.FetchVenues(ctx)
	if err != nil {
		return fmt.Errorf("fetch venues: %w", err)
	}

	changed, err := r.registry.Replace(ctx, venues)
	if err != nil {
		return err
	}
	if !changed {
		r.log.Debug("venue set unchanged")
		return nil
	}

	current := r.registry.Venues()
	r.log.WithField("venues", len(current)).Info("venue set replaced")
	r.notify(domain.VenuesChanged{Venues: current})
	return nil
}
