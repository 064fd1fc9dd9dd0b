package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
)

const sharedScanTimeout = 10 * time.Second

// ProximityOptions tunes the proximity index.
type ProximityOptions struct {
	Precision           int
	DefaultRadiusMeters float64
	MaxRadiusMeters     float64
	CacheTTLSeconds     int
}

func (o ProximityOptions) withDefaults() ProximityOptions {
	if o.Precision <= 0 {
		o.Precision = geospatial.DefaultPrecision
	}
	if o.DefaultRadiusMeters <= 0 {
		o.DefaultRadiusMeters = 1000
	}
	if o.MaxRadiusMeters <= 0 {
		o.MaxRadiusMeters = 50_000
	}
	return o
}

// ProximityService maintains the geo index and answers nearby queries.
type ProximityService struct {
	dir   ports.DirectoryStore
	cache ports.CacheService
	opts  ProximityOptions
	sf    singleflight.Group // collapses concurrent misses on one cache key
}

// NewProximityService creates a new ProximityService. cache may be nil.
func NewProximityService(dir ports.DirectoryStore, cache ports.CacheService, opts ProximityOptions) *ProximityService {
	return &ProximityService{dir: dir, cache: cache, opts: opts.withDefaults()}
}

// Precision is the geohash length written to the index.
func (s *ProximityService) Precision() int {
	return s.opts.Precision
}

// DefaultRadius is the radius used when a caller supplies none.
func (s *ProximityService) DefaultRadius() float64 {
	return s.opts.DefaultRadiusMeters
}

// Upsert writes the entity's current coordinate into the index, observed now.
func (s *ProximityService) Upsert(ctx context.Context, entityID string, c domain.Coordinate) (*domain.GeoIndexEntry, error) {
	return s.UpsertAt(ctx, entityID, c, time.Now().UTC())
}

// UpsertAt writes a coordinate observed at observedAt. When the index already
// holds a later observation the write is dropped and domain.ErrSuperseded is
// returned.
func (s *ProximityService) UpsertAt(ctx context.Context, entityID string, c domain.Coordinate, observedAt time.Time) (*domain.GeoIndexEntry, error) {
	if entityID == "" {
		return nil, fmt.Errorf("upsert: entity id required: %w", domain.ErrInvalidInput)
	}
	hash, err := geospatial.Encode(c, s.opts.Precision)
	if err != nil {
		metrics.LocationUpdates.WithLabelValues("invalid").Inc()
		return nil, err
	}

	entry := &domain.GeoIndexEntry{EntityID: entityID, Coordinate: c, Geohash: hash, ObservedAt: observedAt}
	if err := s.dir.PutEntry(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrSuperseded) {
			metrics.LocationUpdates.WithLabelValues("superseded").Inc()
			return nil, err
		}
		metrics.LocationUpdates.WithLabelValues("error").Inc()
		return nil, unavailable("put entry", err)
	}
	metrics.LocationUpdates.WithLabelValues("ok").Inc()
	return entry, nil
}

// Locate returns the entity's indexed entry.
func (s *ProximityService) Locate(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error) {
	entry, err := s.dir.GetEntry(ctx, entityID)
	if errors.Is(err, domain.ErrMissingLocation) {
		return nil, fmt.Errorf("locate %s: %w", entityID, err)
	}
	if err != nil {
		return nil, unavailable("get entry", err)
	}
	return entry, nil
}

// QueryNearby returns indexed entities within radiusMeters of center,
// excluding excludeID, ordered by distance then ID. No hits yield an empty
// slice.
func (s *ProximityService) QueryNearby(ctx context.Context, center domain.Coordinate, radiusMeters float64, excludeID string) ([]domain.NearbyEntity, error) {
	if !center.Valid() {
		return nil, fmt.Errorf("query nearby: %w", domain.ErrInvalidCoordinate)
	}
	if err := s.checkRadius(radiusMeters); err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanQueryNearby, trace.WithAttributes(
		attribute.Float64("radius_meters", radiusMeters),
	))
	defer span.End()

	cached := s.cache != nil && s.opts.CacheTTLSeconds > 0
	if !cached {
		return s.scanNearby(ctx, span, center, radiusMeters, excludeID)
	}

	cacheKey := fmt.Sprintf("nearby:%.6f:%.6f:%.0f:%s", center.Latitude, center.Longitude, radiusMeters, excludeID)
	if data, err := s.cache.Get(ctx, cacheKey); err == nil {
		var hits []domain.NearbyEntity
		if err := json.Unmarshal(data, &hits); err == nil {
			metrics.CacheHits.WithLabelValues("nearby").Inc()
			return hits, nil
		}
	}
	metrics.CacheMisses.WithLabelValues("nearby").Inc()

	// The shared scan outlives any single caller, so one caller's
	// cancellation does not fail the others waiting on it.
	ch := s.sf.DoChan(cacheKey, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedScanTimeout)
		defer cancel()
		hits, err := s.scanNearby(sctx, span, center, radiusMeters, excludeID)
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(hits); err == nil {
			_ = s.cache.Set(sctx, cacheKey, data, s.opts.CacheTTLSeconds)
		}
		return hits, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]domain.NearbyEntity)
		return append(make([]domain.NearbyEntity, 0, len(shared)), shared...), nil
	}
}

func (s *ProximityService) scanNearby(ctx context.Context, span trace.Span, center domain.Coordinate, radiusMeters float64, excludeID string) ([]domain.NearbyEntity, error) {
	start := time.Now()
	ranges, err := geospatial.QueryBounds(center, radiusMeters, s.opts.Precision)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("ranges", len(ranges)))

	entries, err := scanRanges(ctx, ranges, s.dir.RangeScan)
	if err != nil {
		span.RecordError(err)
		return nil, unavailable("range scan", err)
	}
	metrics.NearbyCandidates.WithLabelValues("entities").Add(float64(len(entries)))

	hits := filterNearby(entries, center, radiusMeters, excludeID)
	metrics.ObserveSince(metrics.NearbyQueryDuration.WithLabelValues("entities"), start)
	return hits, nil
}

// NearbyFor queries around the entity's own indexed location. A zero radius
// uses the configured default.
func (s *ProximityService) NearbyFor(ctx context.Context, entityID string, radiusMeters float64) ([]domain.NearbyEntity, error) {
	if radiusMeters == 0 {
		radiusMeters = s.opts.DefaultRadiusMeters
	}
	entry, err := s.Locate(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.QueryNearby(ctx, entry.Coordinate, radiusMeters, entityID)
}

func (s *ProximityService) checkRadius(r float64) error {
	if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) || r > s.opts.MaxRadiusMeters {
		return fmt.Errorf("radius %v: %w", r, domain.ErrInvalidRadius)
	}
	return nil
}

func filterNearby(entries []domain.GeoIndexEntry, center domain.Coordinate, radius float64, excludeID string) []domain.NearbyEntity {
	seen := make(map[string]struct{}, len(entries))
	hits := make([]domain.NearbyEntity, 0, len(entries))
	for _, e := range entries {
		if e.EntityID == excludeID {
			continue
		}
		if _, dup := seen[e.EntityID]; dup {
			continue
		}
		seen[e.EntityID] = struct{}{}

		d := geospatial.DistanceMeters(center, e.Coordinate)
		if d > radius {
			continue
		}
		hits = append(hits, domain.NearbyEntity{
			EntityID:       e.EntityID,
			Coordinate:     e.Coordinate,
			Geohash:        e.Geohash,
			DistanceMeters: d,
			LastUpdated:    e.LastUpdated,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].EntityID < hits[j].EntityID
	})
	return hits
}
