package domain

import "math"

const earthRadiusMeters = 6371000

// DistanceMeters is the great-circle (haversine) distance between two points.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (r Region) Contains(lat, lon float64) bool {
	return DistanceMeters(lat, lon, r.Lat, r.Lon) <= r.Radius
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
