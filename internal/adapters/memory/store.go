// Package memory provides in-process implementations of the directory and
// group stores and of the message bus, for single-node runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/validation"
)

// Store implements ports.DirectoryStore and ports.GroupStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]domain.GeoIndexEntry
	groups  map[string]domain.LocationGroup

	clockMu sync.Mutex
	lastTS  time.Time
	now     func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]domain.GeoIndexEntry),
		groups:  make(map[string]domain.LocationGroup),
		now:     time.Now,
	}
}

// stamp returns a strictly increasing timestamp.
func (s *Store) stamp() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	ts := s.now().UTC()
	if !ts.After(s.lastTS) {
		ts = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = ts
	return ts
}

// PutEntry overwrites the entity's entry and stamps LastUpdated. Writes
// observed before the stored entry are rejected with domain.ErrSuperseded.
func (s *Store) PutEntry(ctx context.Context, entry *domain.GeoIndexEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.Record(entry); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.entries[entry.EntityID]
	if exists && prev.ObservedAt.After(entry.ObservedAt) && !entry.ObservedAt.IsZero() {
		return fmt.Errorf("entry %s observed %s, stored %s: %w",
			entry.EntityID, entry.ObservedAt.Format(time.RFC3339Nano), prev.ObservedAt.Format(time.RFC3339Nano), domain.ErrSuperseded)
	}

	entry.LastUpdated = s.stamp()
	if entry.ObservedAt.IsZero() {
		entry.ObservedAt = entry.LastUpdated
	}
	stored := *entry
	if exists {
		stored.GroupIDs = prev.GroupIDs
	}
	stored.GroupIDs = cloneIDs(stored.GroupIDs)
	s.entries[entry.EntityID] = stored
	entry.GroupIDs = cloneIDs(stored.GroupIDs)
	return nil
}

// GetEntry returns the entity's entry.
func (s *Store) GetEntry(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entityID]
	if !ok {
		return nil, domain.ErrMissingLocation
	}
	e.GroupIDs = cloneIDs(e.GroupIDs)
	return &e, nil
}

// RangeScan returns entries with start <= geohash <= end, ordered by geohash.
func (s *Store) RangeScan(ctx context.Context, start, end string) ([]domain.GeoIndexEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.GeoIndexEntry{}
	for _, e := range s.entries {
		if e.Geohash >= start && e.Geohash <= end {
			e.GroupIDs = cloneIDs(e.GroupIDs)
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Geohash != out[j].Geohash {
			return out[i].Geohash < out[j].Geohash
		}
		return out[i].EntityID < out[j].EntityID
	})
	return out, nil
}

// Create stores a new group and records it on the members' entries.
func (s *Store) Create(ctx context.Context, group *domain.LocationGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validation.Record(group); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[group.ID]; exists {
		return fmt.Errorf("group %s already exists", group.ID)
	}
	stored := cloneGroup(*group)
	stored.ParticipantCount = len(stored.MemberIDs)
	s.groups[group.ID] = stored
	group.ParticipantCount = stored.ParticipantCount
	for _, member := range group.MemberIDs {
		s.linkEntity(member, group.ID, true)
	}
	return nil
}

// GetByID returns a group by ID.
func (s *Store) GetByID(ctx context.Context, id string) (*domain.LocationGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.groups[id]
	if !ok {
		return nil, domain.ErrGroupNotFound
	}
	g = cloneGroup(g)
	return &g, nil
}

// RangeScanActive returns active groups with start <= centre geohash <= end.
func (s *Store) RangeScanActive(ctx context.Context, start, end string) ([]domain.LocationGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.LocationGroup{}
	for _, g := range s.groups {
		if g.IsActive && g.CenterGeohash >= start && g.CenterGeohash <= end {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListByMember returns every group that lists entityID as a participant.
func (s *Store) ListByMember(ctx context.Context, entityID string) ([]domain.LocationGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []domain.LocationGroup{}
	for _, g := range s.groups {
		if g.HasMember(entityID) {
			out = append(out, cloneGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// BatchWrite applies all mutations or none. Mutations are staged on copies
// of the affected groups and swapped in only when every one is valid.
func (s *Store) BatchWrite(ctx context.Context, mutations []domain.MembershipMutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]domain.LocationGroup)
	for _, m := range mutations {
		g, ok := staged[m.GroupID]
		if !ok {
			current, exists := s.groups[m.GroupID]
			if !exists {
				return fmt.Errorf("batch %s on %s: %w", m.Op, m.GroupID, domain.ErrGroupNotFound)
			}
			g = cloneGroup(current)
		}

		switch m.Op {
		case domain.OpJoin:
			if !g.IsActive {
				return fmt.Errorf("batch join %s: %w", m.GroupID, domain.ErrGroupInactive)
			}
			if !g.HasMember(m.EntityID) {
				g.MemberIDs = append(g.MemberIDs, m.EntityID)
			}
			if m.EntityName != "" {
				g.ParticipantNames[m.EntityID] = m.EntityName
			}
			g.OptedOutIDs = removeID(g.OptedOutIDs, m.EntityID)
		case domain.OpLeave:
			g.MemberIDs = removeID(g.MemberIDs, m.EntityID)
			delete(g.ParticipantNames, m.EntityID)
			if m.OptOut && !g.HasOptedOut(m.EntityID) {
				g.OptedOutIDs = append(g.OptedOutIDs, m.EntityID)
			}
			if len(g.MemberIDs) == 0 {
				g.IsActive = false
			}
		default:
			return fmt.Errorf("batch op %q: %w", m.Op, domain.ErrInvalidInput)
		}
		g.ParticipantCount = len(g.MemberIDs)
		staged[m.GroupID] = g
	}

	for id, g := range staged {
		s.groups[id] = g
	}
	for _, m := range mutations {
		s.linkEntity(m.EntityID, m.GroupID, m.Op == domain.OpJoin)
	}
	return nil
}

// RecordMessage sets the group's last message unless a newer one is stored.
func (s *Store) RecordMessage(ctx context.Context, groupID, text string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return domain.ErrGroupNotFound
	}
	if g.LastMessageAt != nil && g.LastMessageAt.After(at) {
		return nil
	}
	at = at.UTC()
	g.LastMessage = text
	g.LastMessageAt = &at
	s.groups[groupID] = g
	return nil
}

// linkEntity keeps an entry's group list in step with memberships. Callers
// hold s.mu.
func (s *Store) linkEntity(entityID, groupID string, member bool) {
	e, ok := s.entries[entityID]
	if !ok {
		return
	}
	e.GroupIDs = removeID(e.GroupIDs, groupID)
	if member {
		e.GroupIDs = append(e.GroupIDs, groupID)
	}
	s.entries[entityID] = e
}

func cloneGroup(g domain.LocationGroup) domain.LocationGroup {
	g.MemberIDs = cloneIDs(g.MemberIDs)
	g.OptedOutIDs = cloneIDs(g.OptedOutIDs)
	names := make(map[string]string, len(g.ParticipantNames))
	for id, name := range g.ParticipantNames {
		names[id] = name
	}
	g.ParticipantNames = names
	if g.LastMessageAt != nil {
		at := *g.LastMessageAt
		g.LastMessageAt = &at
	}
	return g
}

func cloneIDs(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

func removeID(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
