package domain

import "time"

// ProximityState is the single venue the user is considered to be at.
// NearVenueID is NoVenue when the user is not near any venue.
type ProximityState struct {
	NearVenueID   int64     `json:"near_venue_id"`
	LastChangedAt time.Time `json:"last_changed_at"`
}

func NewProximityState() ProximityState {
	return ProximityState{NearVenueID: NoVenue}
}

func (s ProximityState) IsNear() bool {
	return s.NearVenueID != NoVenue
}

// Status is the read-only snapshot handed to UI and sync consumers.
type Status struct {
	Proximity        ProximityState     `json:"proximity"`
	Mode             MonitoringMode     `json:"mode"`
	Authorization    AuthorizationLevel `json:"authorization"`
	InstalledRegions int                `json:"installed_regions"`
	Venues           int                `json:"venues"`
}

// ProximityChange is published whenever the near-venue changes.
type ProximityChange struct {
	DeviceID        string    `json:"device_id"`
	PreviousVenueID int64     `json:"previous_venue_id"`
	NearVenueID     int64     `json:"near_venue_id"`
	Mode            string    `json:"mode"`
	ChangedAt       time.Time `json:"changed_at"`
}
