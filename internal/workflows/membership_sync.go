package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// TaskQueue is the default queue the reconciler worker polls.
const TaskQueue = "membership-sync"

// MembershipSyncInput is the input for the membership sync workflow.
type MembershipSyncInput struct {
	EntityID   string
	Coordinate domain.Coordinate
}

// MembershipSyncWorkflow reconciles an entity's group memberships after a
// location report and then publishes the resulting changes. Publishing is
// skipped when nothing changed.
func MembershipSyncWorkflow(ctx workflow.Context, input MembershipSyncInput) (*domain.ReconcileResult, error) {
	logger := workflow.GetLogger(ctx)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{ErrTypeInvalidInput, ErrTypeGroupState},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	var result domain.ReconcileResult
	if err := workflow.ExecuteActivity(ctx, "SyncMembership", input).Get(ctx, &result); err != nil {
		logger.Warn("membership sync failed", "entity_id", input.EntityID, "error", err)
		return nil, err
	}

	if result.Empty() {
		return &result, nil
	}

	if err := workflow.ExecuteActivity(ctx, "PublishChanges", input.EntityID, &result).Get(ctx, nil); err != nil {
		return nil, err
	}

	logger.Info("membership changed", "entity_id", input.EntityID,
		"joined", len(result.Joined), "left", len(result.Left))
	return &result, nil
}
