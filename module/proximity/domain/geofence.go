package domain

import (
	"strconv"
	"strings"
)

const (
	ClusterBoundaryID = "cluster-boundary"
	venueRegionPrefix = "venue:"
)

type Region struct {
	ID     string  `json:"region_id"`
	Lat    float64 `json:"latitude"`
	Lon    float64 `json:"longitude"`
	Radius float64 `json:"radius"`
}

func VenueRegionID(venueID int64) string {
	return venueRegionPrefix + strconv.FormatInt(venueID, 10)
}

// ParseVenueRegionID extracts the venue id encoded in a region identifier.
func ParseVenueRegionID(regionID string) (int64, bool) {
	raw, ok := strings.CutPrefix(regionID, venueRegionPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
