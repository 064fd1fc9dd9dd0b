package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
)

func testGroup(id string, members ...string) *domain.LocationGroup {
	return &domain.LocationGroup{
		ID:            id,
		Name:          "Group " + id,
		CreatorID:     members[0],
		Center:        domain.Coordinate{Latitude: 40.7128, Longitude: -74.0060},
		CenterGeohash: "dr5regw",
		RadiusMeters:  1000,
		MemberIDs:     members,
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
}

func TestStore_PutEntry_StampsMonotonic(t *testing.T) {
	s := NewStore()
	fixed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	ctx := context.Background()

	a := &domain.GeoIndexEntry{EntityID: "u1", Geohash: "dr5regw", Coordinate: domain.Coordinate{Latitude: 40.7, Longitude: -74}}
	b := &domain.GeoIndexEntry{EntityID: "u1", Geohash: "dr5regx", Coordinate: domain.Coordinate{Latitude: 40.7, Longitude: -74}}
	if err := s.PutEntry(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.PutEntry(ctx, b); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.LastUpdated.After(a.LastUpdated) {
		t.Errorf("expected second stamp after first: %v vs %v", b.LastUpdated, a.LastUpdated)
	}

	got, err := s.GetEntry(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Geohash != "dr5regx" {
		t.Errorf("expected overwrite, got %s", got.Geohash)
	}
}

func TestStore_PutEntry_RejectsOlderObservation(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	newer := &domain.GeoIndexEntry{EntityID: "u1", Geohash: "dr5regx", ObservedAt: t0.Add(time.Second),
		Coordinate: domain.Coordinate{Latitude: 40.71, Longitude: -74}}
	older := &domain.GeoIndexEntry{EntityID: "u1", Geohash: "dr5regw", ObservedAt: t0,
		Coordinate: domain.Coordinate{Latitude: 40.70, Longitude: -74}}

	if err := s.PutEntry(ctx, newer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.PutEntry(ctx, older); !errors.Is(err, domain.ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}

	got, _ := s.GetEntry(ctx, "u1")
	if got.Geohash != "dr5regx" || !got.ObservedAt.Equal(newer.ObservedAt) {
		t.Errorf("older write clobbered the entry: %+v", got)
	}

	// Redelivering the same observation is applied again.
	if err := s.PutEntry(ctx, newer); err != nil {
		t.Errorf("expected equal observation to be accepted, got %v", err)
	}
}

func TestStore_PutEntry_Malformed(t *testing.T) {
	s := NewStore()
	err := s.PutEntry(context.Background(), &domain.GeoIndexEntry{EntityID: "u1", Coordinate: domain.Coordinate{Latitude: 120}})
	if !errors.Is(err, domain.ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}
}

func TestStore_GetEntry_Missing(t *testing.T) {
	_, err := NewStore().GetEntry(context.Background(), "nobody")
	if !errors.Is(err, domain.ErrMissingLocation) {
		t.Errorf("expected ErrMissingLocation, got %v", err)
	}
}

func TestStore_RangeScan_Inclusive(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	for id, hash := range map[string]string{"a": "dr5rega", "b": "dr5regz", "c": "dr5rf00", "d": "dr5re00"} {
		_ = s.PutEntry(ctx, &domain.GeoIndexEntry{EntityID: id, Geohash: hash})
	}

	got, err := s.RangeScan(ctx, "dr5reg", "dr5reg~")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].EntityID != "a" || got[1].EntityID != "b" {
		t.Errorf("expected [a b], got %+v", got)
	}

	got, _ = s.RangeScan(ctx, "dr5re00", "dr5re00")
	if len(got) != 1 || got[0].EntityID != "d" {
		t.Errorf("expected inclusive single hit, got %+v", got)
	}
}

func TestStore_BatchWrite_Atomic(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	if err := s.Create(ctx, testGroup("g1", "creator")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := s.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u1", Op: domain.OpJoin},
		{GroupID: "missing", EntityID: "u1", Op: domain.OpJoin},
	})
	if !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}

	g, _ := s.GetByID(ctx, "g1")
	if g.HasMember("u1") {
		t.Error("partial batch must not be committed")
	}
}

func TestStore_BatchWrite_DeactivatesEmptyGroup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Create(ctx, testGroup("g1", "creator"))

	err := s.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "creator", Op: domain.OpLeave, OptOut: true}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, _ := s.GetByID(ctx, "g1")
	if g.IsActive {
		t.Error("expected group to be inactive")
	}
	if !g.HasOptedOut("creator") {
		t.Error("expected opt-out to be recorded")
	}

	active, _ := s.RangeScanActive(ctx, "dr5", "dr5~")
	if len(active) != 0 {
		t.Errorf("inactive group must not be scanned, got %d", len(active))
	}

	err = s.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "u2", Op: domain.OpJoin}})
	if !errors.Is(err, domain.ErrGroupInactive) {
		t.Errorf("expected ErrGroupInactive, got %v", err)
	}
}

func TestStore_BatchWrite_TracksParticipants(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	g := testGroup("g1", "creator")
	g.CreatorName = "Cora"
	g.ParticipantNames = map[string]string{"creator": "Cora"}
	_ = s.Create(ctx, g)

	got, _ := s.GetByID(ctx, "g1")
	if got.ParticipantCount != 1 {
		t.Fatalf("expected count 1 after create, got %d", got.ParticipantCount)
	}

	err := s.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u1", EntityName: "Uma", Op: domain.OpJoin},
		{GroupID: "g1", EntityID: "u2", Op: domain.OpJoin},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ = s.GetByID(ctx, "g1")
	if got.ParticipantCount != 3 || got.ParticipantCount != len(got.MemberIDs) {
		t.Errorf("expected count 3, got %d for %v", got.ParticipantCount, got.MemberIDs)
	}
	if got.ParticipantNames["u1"] != "Uma" || got.ParticipantNames["creator"] != "Cora" {
		t.Errorf("unexpected names %v", got.ParticipantNames)
	}

	_ = s.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "u1", Op: domain.OpLeave}})
	got, _ = s.GetByID(ctx, "g1")
	if got.ParticipantCount != 2 {
		t.Errorf("expected count 2 after leave, got %d", got.ParticipantCount)
	}
	if _, ok := got.ParticipantNames["u1"]; ok {
		t.Error("expected name of departed member to be dropped")
	}
}

func TestStore_RecordMessage(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Create(ctx, testGroup("g1", "creator"))
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := s.RecordMessage(ctx, "g1", "second", t0.Add(time.Minute)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.RecordMessage(ctx, "g1", "first", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, _ := s.GetByID(ctx, "g1")
	if g.LastMessage != "second" || g.LastMessageAt == nil || !g.LastMessageAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected newest message kept, got %q at %v", g.LastMessage, g.LastMessageAt)
	}

	if err := s.RecordMessage(ctx, "nope", "x", t0); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Errorf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestStore_BatchWrite_LinksEntity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.PutEntry(ctx, &domain.GeoIndexEntry{EntityID: "u1", Geohash: "dr5regw"})
	_ = s.Create(ctx, testGroup("g1", "creator"))

	_ = s.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "u1", Op: domain.OpJoin}})
	e, _ := s.GetEntry(ctx, "u1")
	if len(e.GroupIDs) != 1 || e.GroupIDs[0] != "g1" {
		t.Errorf("expected group_ids [g1], got %v", e.GroupIDs)
	}

	groups, _ := s.ListByMember(ctx, "u1")
	if len(groups) != 1 {
		t.Errorf("expected 1 member group, got %d", len(groups))
	}

	_ = s.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "u1", Op: domain.OpLeave}})
	e, _ = s.GetEntry(ctx, "u1")
	if len(e.GroupIDs) != 0 {
		t.Errorf("expected no group_ids, got %v", e.GroupIDs)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_ = s.Create(ctx, testGroup("g1", "creator"))

	g, _ := s.GetByID(ctx, "g1")
	g.MemberIDs[0] = "tampered"

	again, _ := s.GetByID(ctx, "g1")
	if again.MemberIDs[0] != "creator" {
		t.Error("store state leaked through returned group")
	}
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStore().RangeScan(ctx, "0", "~"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
