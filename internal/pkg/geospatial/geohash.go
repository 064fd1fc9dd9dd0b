package geospatial

import (
	"fmt"
	"math"

	"github.com/mmcloughlin/geohash"

	"github.com/samirrijal/huddle/internal/core/domain"
)

const (
	// DefaultPrecision is the number of geohash characters stored per entry
	// (cells of roughly 153 m x 153 m at the equator).
	DefaultPrecision = 7
	// MaxPrecision is the longest geohash the codec produces.
	MaxPrecision = 12
)

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode returns the geohash of c truncated to precision characters.
func Encode(c domain.Coordinate, precision int) (string, error) {
	if !c.Valid() {
		return "", fmt.Errorf("encode (%v, %v): %w", c.Latitude, c.Longitude, domain.ErrInvalidCoordinate)
	}
	if err := checkPrecision(precision); err != nil {
		return "", err
	}

	// The upper edges belong to the last cell of each axis. The library
	// scales by 2^32 into a uint32, so anything closer to the edge than half
	// the finest cell wraps to the opposite edge.
	lat, lon := clampEdge(c.Latitude, c.Longitude)
	return geohash.EncodeWithPrecision(lat, lon, uint(precision)), nil
}

func clampEdge(lat, lon float64) (float64, float64) {
	h, w := CellDimensions(MaxPrecision)
	if maxLat := 90 - h/2; lat > maxLat {
		lat = maxLat
	}
	if maxLon := 180 - w/2; lon > maxLon {
		lon = maxLon
	}
	return lat, lon
}

// Decode returns the centre of the cell identified by hash.
func Decode(hash string) (domain.Coordinate, error) {
	if hash == "" || len(hash) > MaxPrecision {
		return domain.Coordinate{}, fmt.Errorf("decode %q: %w", hash, domain.ErrInvalidCoordinate)
	}
	if err := geohash.Validate(hash); err != nil {
		return domain.Coordinate{}, fmt.Errorf("decode %q: %v: %w", hash, err, domain.ErrInvalidCoordinate)
	}
	lat, lon := geohash.DecodeCenter(hash)
	return domain.Coordinate{Latitude: lat, Longitude: lon}, nil
}

// CellDimensions returns the height and width in degrees of a cell of the
// given precision. Odd bit positions carry latitude, so longitude gets the
// extra bit when 5*precision is odd.
func CellDimensions(precision int) (heightDeg, widthDeg float64) {
	bits := 5 * precision
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / math.Ldexp(1, latBits), 360 / math.Ldexp(1, lonBits)
}

// CellDiagonalMeters is the corner-to-corner length of a cell of the given
// precision on the equator, the widest a cell gets.
func CellDiagonalMeters(precision int) float64 {
	h, w := CellDimensions(precision)
	return Haversine(0, 0, h, w)
}

// hashValue maps a geohash to its integer position among hashes of equal
// length, so neighbouring cells in sort order differ by one.
func hashValue(hash string) uint64 {
	var v uint64
	for i := 0; i < len(hash); i++ {
		v = v<<5 | uint64(indexOf(hash[i]))
	}
	return v
}

func indexOf(b byte) int {
	for i := 0; i < len(base32Alphabet); i++ {
		if base32Alphabet[i] == b {
			return i
		}
	}
	return -1
}

func checkPrecision(precision int) error {
	if precision < 1 || precision > MaxPrecision {
		return fmt.Errorf("geohash precision %d outside [1, %d]: %w", precision, MaxPrecision, domain.ErrInvalidInput)
	}
	return nil
}
