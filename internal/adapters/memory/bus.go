package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samirrijal/huddle/internal/core/domain"
)

type subscriber struct {
	ch   chan domain.GroupMessage
	done chan struct{}
}

// Bus is an in-process event publisher and group message channel. Group
// messages are retained so new subscribers receive the full history in
// order before live messages.
type Bus struct {
	mu       sync.Mutex
	messages map[string][]domain.GroupMessage
	subs     map[string]map[*subscriber]struct{}

	locations   []domain.GeoIndexEntry
	memberships []domain.MembershipChange
	reportFns   []func(ctx context.Context, report *domain.LocationReport) error
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{
		messages: make(map[string][]domain.GroupMessage),
		subs:     make(map[string]map[*subscriber]struct{}),
	}
}

// PublishGroupMessage appends msg to its group's history and fans it out.
func (b *Bus) PublishGroupMessage(ctx context.Context, msg *domain.GroupMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.messages[msg.GroupID] = append(b.messages[msg.GroupID], *msg)
	for sub := range b.subs[msg.GroupID] {
		select {
		case sub.ch <- *msg:
		case <-sub.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// SubscribeGroupMessages replays the group's history then delivers new
// messages to handler until ctx is done. It returns immediately.
func (b *Bus) SubscribeGroupMessages(ctx context.Context, groupID string, handler func(ctx context.Context, msg *domain.GroupMessage) error) error {
	sub := &subscriber{ch: make(chan domain.GroupMessage, 64), done: make(chan struct{})}

	b.mu.Lock()
	history := append([]domain.GroupMessage(nil), b.messages[groupID]...)
	if b.subs[groupID] == nil {
		b.subs[groupID] = make(map[*subscriber]struct{})
	}
	b.subs[groupID][sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		defer func() {
			close(sub.done)
			b.mu.Lock()
			delete(b.subs[groupID], sub)
			b.mu.Unlock()
		}()

		deliver := func(msg domain.GroupMessage) {
			if err := handler(ctx, &msg); err != nil {
				slog.Warn("group message handler failed", "group_id", groupID, "error", err)
			}
		}
		for _, msg := range history {
			if ctx.Err() != nil {
				return
			}
			deliver(msg)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-sub.ch:
				deliver(msg)
			}
		}
	}()
	return nil
}

// PublishLocationReport hands the report to every registered report handler.
func (b *Bus) PublishLocationReport(ctx context.Context, report *domain.LocationReport) error {
	b.mu.Lock()
	fns := append([]func(context.Context, *domain.LocationReport) error(nil), b.reportFns...)
	b.mu.Unlock()

	for _, fn := range fns {
		if err := fn(ctx, report); err != nil {
			return err
		}
	}
	return nil
}

// SubscribeLocationReports registers handler for subsequently published reports.
func (b *Bus) SubscribeLocationReports(ctx context.Context, handler func(ctx context.Context, report *domain.LocationReport) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reportFns = append(b.reportFns, handler)
	return nil
}

// PublishLocationUpdated records the entry.
func (b *Bus) PublishLocationUpdated(ctx context.Context, entry *domain.GeoIndexEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.locations = append(b.locations, *entry)
	return nil
}

// PublishMembershipChanged records the change.
func (b *Bus) PublishMembershipChanged(ctx context.Context, change *domain.MembershipChange) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.memberships = append(b.memberships, *change)
	return nil
}

// MembershipChanges returns every membership change published so far.
func (b *Bus) MembershipChanges() []domain.MembershipChange {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.MembershipChange(nil), b.memberships...)
}

// LocationUpdates returns every location update published so far.
func (b *Bus) LocationUpdates() []domain.GeoIndexEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.GeoIndexEntry(nil), b.locations...)
}
