package ports

import (
	"context"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishLocationReport(ctx context.Context, report *domain.LocationReport) error
	PublishLocationUpdated(ctx context.Context, entry *domain.GeoIndexEntry) error
	PublishMembershipChanged(ctx context.Context, change *domain.MembershipChange) error
	PublishGroupMessage(ctx context.Context, msg *domain.GroupMessage) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeLocationReports(ctx context.Context, handler func(ctx context.Context, report *domain.LocationReport) error) error
	SubscribeGroupMessages(ctx context.Context, groupID string, handler func(ctx context.Context, msg *domain.GroupMessage) error) error
}

// MessageChannel is the append-only, ordered stream of one group's chat.
type MessageChannel interface {
	PublishGroupMessage(ctx context.Context, msg *domain.GroupMessage) error
	SubscribeGroupMessages(ctx context.Context, groupID string, handler func(ctx context.Context, msg *domain.GroupMessage) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

// SyncScheduler runs a membership sync for an entity out of band.
type SyncScheduler interface {
	ScheduleSync(ctx context.Context, entityID string, c domain.Coordinate) error
}

// CoordinateSource yields the current position of the reporting device.
type CoordinateSource interface {
	Current(ctx context.Context) (domain.Coordinate, error)
}

// LocationSink accepts periodic position reports.
type LocationSink interface {
	ReportLocation(ctx context.Context, entityID string, c domain.Coordinate) error
}
