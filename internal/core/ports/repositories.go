package ports

import (
	"context"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// DirectoryStore persists geo index entries keyed by entity ID.
type DirectoryStore interface {
	// PutEntry overwrites the entity's entry and stamps LastUpdated. A write
	// observed before the stored entry is rejected with domain.ErrSuperseded
	// and leaves the entry unchanged. A zero ObservedAt is stamped with the
	// store's clock.
	PutEntry(ctx context.Context, entry *domain.GeoIndexEntry) error
	// GetEntry returns domain.ErrMissingLocation when the entity has no entry.
	GetEntry(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error)
	// RangeScan returns entries whose geohash lies in [start, end].
	RangeScan(ctx context.Context, start, end string) ([]domain.GeoIndexEntry, error)
}

// GroupStore persists location groups and their memberships.
type GroupStore interface {
	Create(ctx context.Context, group *domain.LocationGroup) error
	// GetByID returns domain.ErrGroupNotFound for unknown IDs.
	GetByID(ctx context.Context, id string) (*domain.LocationGroup, error)
	// RangeScanActive returns active groups whose centre geohash lies in [start, end].
	RangeScanActive(ctx context.Context, start, end string) ([]domain.LocationGroup, error)
	ListByMember(ctx context.Context, entityID string) ([]domain.LocationGroup, error)
	// BatchWrite applies every mutation or none. A group left without
	// participants is deactivated in the same commit.
	BatchWrite(ctx context.Context, mutations []domain.MembershipMutation) error
	// RecordMessage stores text as the group's last message. An older
	// message never replaces a newer one.
	RecordMessage(ctx context.Context, groupID, text string, at time.Time) error
}
