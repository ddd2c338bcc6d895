package domain

// NoVenue is reported to the backend when the user is not near any venue.
const NoVenue int64 = -1

type Venue struct {
	ID        int64   `json:"id" yaml:"id"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

func (v Venue) Valid() bool {
	return v.ID > 0 && ValidCoordinates(v.Latitude, v.Longitude)
}
