package workflows

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// Scheduler starts a MembershipSyncWorkflow per location report.
type Scheduler struct {
	client    client.Client
	taskQueue string
}

// NewScheduler returns a scheduler bound to taskQueue.
func NewScheduler(c client.Client, taskQueue string) *Scheduler {
	if taskQueue == "" {
		taskQueue = TaskQueue
	}
	return &Scheduler{client: c, taskQueue: taskQueue}
}

// ScheduleSync starts the workflow and returns without waiting for it.
func (s *Scheduler) ScheduleSync(ctx context.Context, entityID string, c domain.Coordinate) error {
	opts := client.StartWorkflowOptions{
		ID:        fmt.Sprintf("membership-sync-%s-%d", entityID, time.Now().UnixNano()),
		TaskQueue: s.taskQueue,
	}
	_, err := s.client.ExecuteWorkflow(ctx, opts, MembershipSyncWorkflow, MembershipSyncInput{
		EntityID:   entityID,
		Coordinate: c,
	})
	if err != nil {
		return fmt.Errorf("start membership sync: %w", err)
	}
	return nil
}
