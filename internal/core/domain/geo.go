package domain

import "math"

// Coordinate is a WGS 84 position in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Valid reports whether the coordinate is finite and within
// [-90, 90] x [-180, 180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// BoundingRange is an inclusive lexicographic range over geohash strings.
type BoundingRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether hash sorts inside the range.
func (r BoundingRange) Contains(hash string) bool {
	return hash >= r.Start && hash <= r.End
}
