package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/huddle/internal/adapters/memory"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
)

func newLocationService(store *memory.Store, bus *memory.Bus, scheduler *mockScheduler) *usecases.LocationService {
	proximity := usecases.NewProximityService(store, nil, usecases.ProximityOptions{})
	membership := newMembership(store)
	if scheduler == nil {
		return usecases.NewLocationService(proximity, membership, bus, nil)
	}
	return usecases.NewLocationService(proximity, membership, bus, scheduler)
}

func TestLocationService_Report_InlineSync(t *testing.T) {
	store := memory.NewStore()
	bus := memory.NewBus()
	svc := newLocationService(store, bus, nil)
	ctx := context.Background()
	seedGroup(t, store, "g1", nyc, 1000, "creator")

	entry, err := svc.Report(ctx, "e", geospatial.Destination(nyc, 0, 100))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Geohash == "" || entry.LastUpdated.IsZero() {
		t.Errorf("expected stamped entry, got %+v", entry)
	}

	if n := len(bus.LocationUpdates()); n != 1 {
		t.Errorf("expected 1 location update event, got %d", n)
	}
	changes := bus.MembershipChanges()
	if len(changes) != 1 || changes[0].GroupID != "g1" || changes[0].Op != domain.OpJoin {
		t.Errorf("expected join event for g1, got %+v", changes)
	}

	stored, _ := store.GetEntry(ctx, "e")
	if len(stored.GroupIDs) != 1 || stored.GroupIDs[0] != "g1" {
		t.Errorf("expected entry group_ids [g1], got %v", stored.GroupIDs)
	}
}

func TestLocationService_Report_Scheduled(t *testing.T) {
	store := memory.NewStore()
	bus := memory.NewBus()
	scheduler := &mockScheduler{}
	svc := newLocationService(store, bus, scheduler)
	ctx := context.Background()
	seedGroup(t, store, "g1", nyc, 1000, "creator")

	if _, err := svc.Report(ctx, "e", nyc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scheduler.calls != 1 {
		t.Errorf("expected sync to be scheduled once, got %d", scheduler.calls)
	}
	g, _ := store.GetByID(ctx, "g1")
	if g.HasMember("e") {
		t.Error("scheduled sync must not run inline")
	}
}

func TestLocationService_Report_SchedulerFallback(t *testing.T) {
	store := memory.NewStore()
	scheduler := &mockScheduler{
		scheduleFn: func(ctx context.Context, entityID string, c domain.Coordinate) error {
			return errors.New("temporal unavailable")
		},
	}
	svc := newLocationService(store, memory.NewBus(), scheduler)
	ctx := context.Background()
	seedGroup(t, store, "g1", nyc, 1000, "creator")

	if _, err := svc.Report(ctx, "e", nyc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g, _ := store.GetByID(ctx, "g1")
	if !g.HasMember("e") {
		t.Error("expected inline sync after scheduler failure")
	}
}

func TestLocationService_Report_InvalidCoordinate(t *testing.T) {
	svc := newLocationService(memory.NewStore(), memory.NewBus(), nil)
	_, err := svc.Report(context.Background(), "e", domain.Coordinate{Longitude: 200})
	if !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestLocationService_ReportAt_LateOlderReportIsDropped(t *testing.T) {
	store := memory.NewStore()
	bus := memory.NewBus()
	svc := newLocationService(store, bus, nil)
	ctx := context.Background()
	seedGroup(t, store, "g1", nyc, 1000, "creator")

	inside := geospatial.Destination(nyc, 0, 100)
	outside := geospatial.Destination(nyc, 0, 5000)
	newer := time.Date(2026, 3, 1, 9, 0, 10, 0, time.UTC)

	if _, err := svc.ReportAt(ctx, "e", inside, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err := svc.ReportAt(ctx, "e", outside, newer.Add(-10*time.Second))
	if !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	stored, _ := store.GetEntry(ctx, "e")
	if stored.Coordinate != inside {
		t.Errorf("expected newer coordinate to stay indexed, got %+v", stored.Coordinate)
	}
	g, _ := store.GetByID(ctx, "g1")
	if !g.HasMember("e") {
		t.Error("late report must not remove the entity from g1")
	}
	if n := len(bus.LocationUpdates()); n != 1 {
		t.Errorf("expected only the newer report to be broadcast, got %d", n)
	}
	for _, c := range bus.MembershipChanges() {
		if c.Op == domain.OpLeave {
			t.Errorf("unexpected leave event %+v", c)
		}
	}
}
