package domain

// Event is a typed input consumed by the engine's serialized loop.
type Event interface {
	Kind() string
}

type AuthorizationChanged struct {
	Level AuthorizationLevel
}

// PositionFixed carries a fix, or a nil Fix when the sensor failed.
// RequestID is zero for unsolicited fixes.
type PositionFixed struct {
	Fix       *Position
	RequestID uint64
}

type RegionEntered struct {
	RegionID string
}

type RegionExited struct {
	RegionID string
}

type ClusterLeft struct{}

type VenuesChanged struct {
	Venues []Venue
}

// LocationCheckDue asks the engine for a single fix if it is in coarse mode.
type LocationCheckDue struct{}

func (AuthorizationChanged) Kind() string { return "authorization_changed" }
func (PositionFixed) Kind() string        { return "position_fixed" }
func (RegionEntered) Kind() string        { return "region_entered" }
func (RegionExited) Kind() string         { return "region_exited" }
func (ClusterLeft) Kind() string          { return "cluster_left" }
func (VenuesChanged) Kind() string        { return "venues_changed" }
func (LocationCheckDue) Kind() string     { return "location_check_due" }
