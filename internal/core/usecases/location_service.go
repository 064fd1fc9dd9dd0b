package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
)

// LocationService handles inbound location reports: index upsert, change
// broadcast and membership sync.
type LocationService struct {
	proximity  *ProximityService
	membership *MembershipService
	publisher  ports.EventPublisher
	scheduler  ports.SyncScheduler
}

// NewLocationService creates a new LocationService. publisher and scheduler
// may be nil; without a scheduler membership is synced inline.
func NewLocationService(
	proximity *ProximityService,
	membership *MembershipService,
	publisher ports.EventPublisher,
	scheduler ports.SyncScheduler,
) *LocationService {
	return &LocationService{proximity: proximity, membership: membership, publisher: publisher, scheduler: scheduler}
}

// Report indexes the entity at c, observed now, and brings its group
// memberships up to date. When the index write succeeds but the sync fails,
// the entry is returned together with the error.
func (s *LocationService) Report(ctx context.Context, entityID string, c domain.Coordinate) (*domain.GeoIndexEntry, error) {
	return s.ReportAt(ctx, entityID, c, time.Now().UTC())
}

// ReportAt is Report for a coordinate observed at observedAt. A report older
// than the indexed one fails with domain.ErrSuperseded and changes nothing.
func (s *LocationService) ReportAt(ctx context.Context, entityID string, c domain.Coordinate, observedAt time.Time) (*domain.GeoIndexEntry, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanReportLocation, trace.WithAttributes(
		attribute.String("entity_id", entityID),
	))
	defer span.End()

	entry, err := s.proximity.UpsertAt(ctx, entityID, c, observedAt)
	if err != nil {
		return nil, err
	}

	if s.publisher != nil {
		if err := s.publisher.PublishLocationUpdated(ctx, entry); err != nil {
			slog.WarnContext(ctx, "publish location updated failed", "entity_id", entityID, "error", err)
		}
	}

	if s.scheduler != nil {
		err := s.scheduler.ScheduleSync(ctx, entityID, c)
		if err == nil {
			metrics.SyncsScheduled.WithLabelValues("ok").Inc()
			return entry, nil
		}
		metrics.SyncsScheduled.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "schedule membership sync failed, syncing inline", "entity_id", entityID, "error", err)
	}

	result, err := s.membership.SyncIndexed(ctx, entityID, c)
	if err != nil {
		span.RecordError(err)
		return entry, fmt.Errorf("sync membership: %w", err)
	}
	PublishMembershipChanges(ctx, s.publisher, entityID, result)
	return entry, nil
}

// ReportLocation satisfies ports.LocationSink.
func (s *LocationService) ReportLocation(ctx context.Context, entityID string, c domain.Coordinate) error {
	_, err := s.Report(ctx, entityID, c)
	return err
}

// PublishMembershipChanges broadcasts one event per joined or left group.
// Publish failures are logged and otherwise ignored.
func PublishMembershipChanges(ctx context.Context, publisher ports.EventPublisher, entityID string, result *domain.ReconcileResult) {
	if publisher == nil || result == nil {
		return
	}
	now := time.Now().UTC()
	publish := func(groupID string, op domain.MembershipOp) {
		change := &domain.MembershipChange{GroupID: groupID, EntityID: entityID, Op: op, At: now}
		if err := publisher.PublishMembershipChanged(ctx, change); err != nil {
			slog.WarnContext(ctx, "publish membership change failed",
				"entity_id", entityID, "group_id", groupID, "op", op, "error", err)
		}
	}
	for _, id := range result.Joined {
		publish(id, domain.OpJoin)
	}
	for _, id := range result.Left {
		publish(id, domain.OpLeave)
	}
}
