package geospatial

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/huddle/internal/core/domain"
)

func covered(ranges []domain.BoundingRange, hash string) bool {
	for _, r := range ranges {
		if r.Contains(hash) {
			return true
		}
	}
	return false
}

func TestQueryBounds_Completeness(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	radii := []float64{5, 50, 200, 1000, 5000, 25_000, 150_000}

	for i := 0; i < 400; i++ {
		center := domain.Coordinate{
			Latitude:  rng.Float64()*160 - 80,
			Longitude: rng.Float64()*360 - 180,
		}
		radius := radii[i%len(radii)]

		ranges, err := QueryBounds(center, radius, DefaultPrecision)
		require.NoError(t, err)
		require.NotEmpty(t, ranges)

		for j := 0; j < 25; j++ {
			p := Destination(center, rng.Float64()*360, rng.Float64()*radius*0.999)
			hash, err := Encode(p, DefaultPrecision)
			require.NoError(t, err)
			assert.True(t, covered(ranges, hash), "center %v radius %v point %v hash %s ranges %v", center, radius, p, hash, ranges)
		}
	}
}

func TestQueryBounds_Shape(t *testing.T) {
	center := domain.Coordinate{Latitude: 40.7128, Longitude: -74.0060}
	ranges, err := QueryBounds(center, 1000, DefaultPrecision)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(ranges), 9)
	for i, r := range ranges {
		assert.LessOrEqual(t, r.Start, r.End)
		if i > 0 {
			assert.Less(t, ranges[i-1].End, r.Start, "ranges must be sorted and disjoint")
		}
	}
}

func TestQueryBounds_MergesAdjacentCells(t *testing.T) {
	// "6"/"7" and "d"/"e" are consecutive in geohash order.
	ranges := mergeCells([]string{"d", "e", "7", "6", "s"})
	assert.Equal(t, []domain.BoundingRange{
		{Start: "6", End: "7~"},
		{Start: "d", End: "e~"},
		{Start: "s", End: "s~"},
	}, ranges)
}

func TestQueryBounds_PrecisionShrinksWithRadius(t *testing.T) {
	center := domain.Coordinate{Latitude: 43.263, Longitude: -2.935}

	small, ok := BoundingPrecision(center, 50, DefaultPrecision)
	require.True(t, ok)
	large, ok := BoundingPrecision(center, 50_000, DefaultPrecision)
	require.True(t, ok)

	assert.Equal(t, DefaultPrecision, small)
	assert.Less(t, large, small)
}

func TestQueryBounds_Antimeridian(t *testing.T) {
	center := domain.Coordinate{Latitude: 10, Longitude: 179.9995}
	ranges, err := QueryBounds(center, 500, DefaultPrecision)
	require.NoError(t, err)

	east, err := Encode(domain.Coordinate{Latitude: 10, Longitude: -179.9995}, DefaultPrecision)
	require.NoError(t, err)
	assert.True(t, covered(ranges, east))
	assert.Greater(t, len(ranges), 1)
}

func TestQueryBounds_FullRangeFallback(t *testing.T) {
	tests := []struct {
		name   string
		center domain.Coordinate
		radius float64
	}{
		{"continental", domain.Coordinate{Latitude: 0, Longitude: 0}, 8_000_000},
		{"north pole", domain.Coordinate{Latitude: 89.99, Longitude: 12}, 5000},
		{"south pole", domain.Coordinate{Latitude: -90, Longitude: 0}, 10},
		{"half earth", domain.Coordinate{Latitude: 0, Longitude: 0}, math.Pi * earthRadiusMeters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges, err := QueryBounds(tt.center, tt.radius, DefaultPrecision)
			require.NoError(t, err)
			assert.Equal(t, []domain.BoundingRange{FullRange}, ranges)
		})
	}

	assert.True(t, FullRange.Contains("0000000"))
	assert.True(t, FullRange.Contains("zzzzzzzzzzzz"))
}

func TestQueryBounds_InvalidInput(t *testing.T) {
	center := domain.Coordinate{Latitude: 1, Longitude: 1}

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := QueryBounds(center, r, DefaultPrecision)
		assert.ErrorIs(t, err, domain.ErrInvalidRadius)
	}

	_, err := QueryBounds(domain.Coordinate{Latitude: 100}, 10, DefaultPrecision)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)

	_, err = QueryBounds(center, 10, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
