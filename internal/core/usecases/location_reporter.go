package usecases

import (
	"context"
	"log/slog"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
)

// LocationReporter periodically reads the device position and forwards it
// to a sink. Reports go out on start and then every interval; with a
// positive minimum movement, positions closer than that to the last
// reported one are skipped.
type LocationReporter struct {
	entityID      string
	source        ports.CoordinateSource
	sink          ports.LocationSink
	interval      time.Duration
	minMoveMeters float64

	last *domain.Coordinate
}

// NewLocationReporter creates a new LocationReporter.
func NewLocationReporter(entityID string, source ports.CoordinateSource, sink ports.LocationSink, interval time.Duration, minMoveMeters float64) *LocationReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LocationReporter{
		entityID:      entityID,
		source:        source,
		sink:          sink,
		interval:      interval,
		minMoveMeters: minMoveMeters,
	}
}

// Run reports until ctx is cancelled. Individual failures are logged and
// the loop keeps going.
func (r *LocationReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReportOnce(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "location report failed", "entity_id", r.entityID, "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ReportOnce reads one position and forwards it unless it is within the
// movement threshold. It reports whether the sink was called.
func (r *LocationReporter) ReportOnce(ctx context.Context) (bool, error) {
	c, err := r.source.Current(ctx)
	if err != nil {
		return false, err
	}
	if r.last != nil && r.minMoveMeters > 0 && geospatial.DistanceMeters(*r.last, c) < r.minMoveMeters {
		return false, nil
	}
	if err := r.sink.ReportLocation(ctx, r.entityID, c); err != nil {
		return false, err
	}
	r.last = &c
	return true, nil
}
