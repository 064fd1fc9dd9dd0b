package geospatial

import (
	"fmt"
	"math"
	"sort"

	"github.com/mmcloughlin/geohash"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// FullRange covers every geohash.
var FullRange = domain.BoundingRange{Start: "0", End: "~"}

// QueryBounds returns the geohash ranges that together cover every point
// within radiusMeters of center. The result over-approximates the circle;
// callers filter hits by distance.
//
// The cover is the 3x3 block of cells around center at the finest precision
// (capped at maxPrecision) whose cells are at least as tall as the circle's
// latitude extent and at least as wide as its longitude extent at the most
// poleward latitude it reaches. Cells that are adjacent in geohash order are
// merged into one range; the rest stay separate.
//
// When the circle reaches a pole, or is too large for even single-character
// cells, the planner falls back to FullRange. Longitude wraps across the
// antimeridian, so a cover there is several disjoint ranges rather than a
// single one.
func QueryBounds(center domain.Coordinate, radiusMeters float64, maxPrecision int) ([]domain.BoundingRange, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("query bounds: %w", domain.ErrInvalidCoordinate)
	}
	if radiusMeters <= 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 0) {
		return nil, fmt.Errorf("query bounds radius %v: %w", radiusMeters, domain.ErrInvalidRadius)
	}
	if err := checkPrecision(maxPrecision); err != nil {
		return nil, err
	}

	precision, ok := BoundingPrecision(center, radiusMeters, maxPrecision)
	if !ok {
		return []domain.BoundingRange{FullRange}, nil
	}

	centre, err := Encode(center, precision)
	if err != nil {
		return nil, err
	}
	return mergeCells(neighbourhood(centre, precision)), nil
}

// BoundingPrecision picks the cell precision used by QueryBounds. It returns
// false when no precision in [1, maxPrecision] can contain the circle in a
// 3x3 block.
func BoundingPrecision(center domain.Coordinate, radiusMeters float64, maxPrecision int) (int, bool) {
	delta := radiusMeters / earthRadiusMeters
	if delta >= math.Pi/2 {
		return 0, false
	}

	latDev := toDeg(delta)
	north, south := center.Latitude+latDev, center.Latitude-latDev
	if north >= 90 || south <= -90 {
		return 0, false
	}
	poleward := math.Max(math.Abs(north), math.Abs(south))

	ratio := math.Sin(delta) / math.Cos(toRad(center.Latitude))
	if ratio >= 1 {
		return 0, false
	}
	lonDev := math.Max(toDeg(math.Asin(ratio)), toDeg(delta/math.Cos(toRad(poleward))))

	for p := maxPrecision; p >= 1; p-- {
		h, w := CellDimensions(p)
		if h >= latDev && w >= lonDev {
			return p, true
		}
	}
	return 0, false
}

// neighbourhood returns the cell and its existing neighbours, deduplicated.
// Rows beyond a pole do not exist and are skipped; longitude wraps.
func neighbourhood(hash string, precision int) []string {
	h, w := CellDimensions(precision)
	clat, clon := geohash.DecodeCenter(hash)

	seen := make(map[string]struct{}, 9)
	cells := make([]string, 0, 9)
	for dy := -1; dy <= 1; dy++ {
		lat := clat + float64(dy)*h
		if lat <= -90 || lat >= 90 {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			lon := normalizeLon(clon + float64(dx)*w)
			cell := geohash.EncodeWithPrecision(lat, lon, uint(precision))
			if _, dup := seen[cell]; dup {
				continue
			}
			seen[cell] = struct{}{}
			cells = append(cells, cell)
		}
	}
	return cells
}

// mergeCells sorts equal-length cells and collapses runs of consecutive
// cells into single ranges. A range ends at the last cell's prefix + "~",
// which sorts after every longer hash sharing that prefix.
func mergeCells(cells []string) []domain.BoundingRange {
	sort.Slice(cells, func(i, j int) bool { return cells[i] < cells[j] })

	ranges := make([]domain.BoundingRange, 0, len(cells))
	start, prev := 0, 0
	for i := 1; i <= len(cells); i++ {
		if i < len(cells) && hashValue(cells[i]) == hashValue(cells[prev])+1 {
			prev = i
			continue
		}
		ranges = append(ranges, domain.BoundingRange{Start: cells[start], End: cells[prev] + "~"})
		start, prev = i, i
	}
	return ranges
}
