package service

import (
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lhakso/bar-tracker/module/proximity/domain"
)

// ProximityReducer folds region events and position fixes into a single
// near-venue value. Geofence-confirmed state always wins over distance
// inference.
type ProximityReducer struct {
	radius float64
	now    func() time.Time
	log    logrus.FieldLogger

	state     domain.ProximityState
	confirmed bool
	inside    []int64
	venues    []domain.Venue
}

func NewProximityReducer(radiusMeters float64, log logrus.FieldLogger) *ProximityReducer {
	return &ProximityReducer{
		radius: radiusMeters,
		now:    time.Now,
		log:    log,
		state:  domain.NewProximityState(),
	}
}

func (r *ProximityReducer) State() domain.ProximityState {
	return r.state
}

// Inside returns the venue regions currently occupied, in entry order.
func (r *ProximityReducer) Inside() []int64 {
	return slices.Clone(r.inside)
}

func (r *ProximityReducer) OnRegionEnter(venueID int64) (domain.ProximityState, bool) {
	if !slices.Contains(r.inside, venueID) {
		r.inside = append(r.inside, venueID)
	}

	switch {
	case r.state.NearVenueID == venueID:
		r.confirmed = true
		return r.state, false
	case r.state.IsNear() && r.confirmed:
		r.log.WithFields(logrus.Fields{
			"venue_id":   venueID,
			"current_id": r.state.NearVenueID,
		}).Debug("enter ignored, current venue still confirmed")
		return r.state, false
	}

	r.confirmed = true
	return r.set(venueID), true
}

func (r *ProximityReducer) OnRegionExit(venueID int64) (domain.ProximityState, bool) {
	r.inside = slices.DeleteFunc(r.inside, func(id int64) bool { return id == venueID })

	if r.state.NearVenueID != venueID {
		return r.state, false
	}

	if len(r.inside) > 0 {
		r.confirmed = true
		return r.set(r.inside[0]), true
	}
	r.confirmed = false
	return r.set(domain.NoVenue), true
}

// OnPositionFix infers the near-venue from distance. Inference stops once a
// venue region has confirmed the state, so in precise mode a fix only
// corrects a near-venue that was inferred before the regions went up.
func (r *ProximityReducer) OnPositionFix(fix *domain.Position, mode domain.MonitoringMode) (domain.ProximityState, bool) {
	if fix == nil || mode == domain.ModeInactive || r.confirmed {
		return r.state, false
	}

	nearest := domain.NoVenue
	best := r.radius
	for _, v := range r.venues {
		d := domain.DistanceMeters(fix.Lat, fix.Lon, v.Latitude, v.Longitude)
		if d > r.radius {
			continue
		}
		if nearest == domain.NoVenue || d < best || (d == best && v.ID < nearest) {
			nearest = v.ID
			best = d
		}
	}

	if nearest == r.state.NearVenueID {
		return r.state, false
	}
	return r.set(nearest), true
}

// SetVenues replaces the venues used for distance inference and drops a
// near-venue that is no longer known.
func (r *ProximityReducer) SetVenues(venues []domain.Venue) (domain.ProximityState, bool) {
	r.venues = nil
	for _, v := range venues {
		if v.Valid() {
			r.venues = append(r.venues, v)
		}
	}

	known := make(map[int64]struct{}, len(venues))
	for _, v := range venues {
		known[v.ID] = struct{}{}
	}
	r.inside = slices.DeleteFunc(r.inside, func(id int64) bool {
		_, ok := known[id]
		return !ok
	})

	if !r.state.IsNear() {
		return r.state, false
	}
	if _, ok := known[r.state.NearVenueID]; ok {
		return r.state, false
	}
	r.confirmed = false
	return r.set(domain.NoVenue), true
}

// Clear drops the near-venue, used when monitoring stops altogether.
func (r *ProximityReducer) Clear() (domain.ProximityState, bool) {
	r.ResetRegions()
	if !r.state.IsNear() {
		return r.state, false
	}
	return r.set(domain.NoVenue), true
}

// ResetRegions forgets geofence-confirmed state once venue regions are torn
// down. The current near-venue is kept but may be overridden by fixes.
func (r *ProximityReducer) ResetRegions() {
	r.inside = nil
	r.confirmed = false
}

func (r *ProximityReducer) set(venueID int64) domain.ProximityState {
	r.state = domain.ProximityState{
		NearVenueID:   venueID,
		LastChangedAt: r.now(),
	}
	return r.state
}
