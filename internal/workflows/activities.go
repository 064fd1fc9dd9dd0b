package workflows

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/core/usecases"
)

// Activity failure types that are never retried.
const (
	ErrTypeInvalidInput = "InvalidInput"
	ErrTypeGroupState   = "GroupState"
)

// MembershipActivities holds the activity implementations for the membership sync workflow.
type MembershipActivities struct {
	Membership *usecases.MembershipService
	Publisher  ports.EventPublisher
}

// SyncMembership reconciles the entity against the groups around its indexed
// coordinate. input.Coordinate is used only when the entity is not indexed.
// A store failure fails the whole batch, so a retry re-runs the diff from
// scratch.
func (a *MembershipActivities) SyncMembership(ctx context.Context, input MembershipSyncInput) (*domain.ReconcileResult, error) {
	result, err := a.Membership.SyncIndexed(ctx, input.EntityID, input.Coordinate)
	if err != nil {
		return nil, classify(input.EntityID, err)
	}
	activity.GetLogger(ctx).Debug("membership synced",
		"entity_id", input.EntityID, "joined", len(result.Joined), "left", len(result.Left))
	return result, nil
}

func classify(entityID string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidCoordinate), errors.Is(err, domain.ErrInvalidInput):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	case errors.Is(err, domain.ErrGroupInactive), errors.Is(err, domain.ErrGroupNotFound),
		errors.Is(err, domain.ErrMalformedRecord):
		return temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeGroupState, err)
	}
	return fmt.Errorf("sync %s: %w", entityID, err)
}

// PublishChanges emits one membership event per joined or left group.
func (a *MembershipActivities) PublishChanges(ctx context.Context, entityID string, result *domain.ReconcileResult) error {
	usecases.PublishMembershipChanges(ctx, a.Publisher, entityID, result)
	return nil
}
