package usecases_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
)

// --- Mock DirectoryStore ---

type mockDirectory struct {
	putEntryFn  func(ctx context.Context, entry *domain.GeoIndexEntry) error
	getEntryFn  func(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error)
	rangeScanFn func(ctx context.Context, start, end string) ([]domain.GeoIndexEntry, error)
}

func (m *mockDirectory) PutEntry(ctx context.Context, entry *domain.GeoIndexEntry) error {
	if m.putEntryFn != nil {
		return m.putEntryFn(ctx, entry)
	}
	return nil
}

func (m *mockDirectory) GetEntry(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error) {
	if m.getEntryFn != nil {
		return m.getEntryFn(ctx, entityID)
	}
	return nil, domain.ErrMissingLocation
}

func (m *mockDirectory) RangeScan(ctx context.Context, start, end string) ([]domain.GeoIndexEntry, error) {
	if m.rangeScanFn != nil {
		return m.rangeScanFn(ctx, start, end)
	}
	return nil, nil
}

// --- Mock GroupStore ---

type mockGroupStore struct {
	createFn          func(ctx context.Context, g *domain.LocationGroup) error
	getByIDFn         func(ctx context.Context, id string) (*domain.LocationGroup, error)
	rangeScanActiveFn func(ctx context.Context, start, end string) ([]domain.LocationGroup, error)
	listByMemberFn    func(ctx context.Context, entityID string) ([]domain.LocationGroup, error)
	batchWriteFn      func(ctx context.Context, mutations []domain.MembershipMutation) error
	recordMessageFn   func(ctx context.Context, groupID, text string, at time.Time) error

	mu          sync.Mutex
	batchWrites int
}

func (m *mockGroupStore) Create(ctx context.Context, g *domain.LocationGroup) error {
	if m.createFn != nil {
		return m.createFn(ctx, g)
	}
	return nil
}

func (m *mockGroupStore) GetByID(ctx context.Context, id string) (*domain.LocationGroup, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrGroupNotFound
}

func (m *mockGroupStore) RangeScanActive(ctx context.Context, start, end string) ([]domain.LocationGroup, error) {
	if m.rangeScanActiveFn != nil {
		return m.rangeScanActiveFn(ctx, start, end)
	}
	return nil, nil
}

func (m *mockGroupStore) ListByMember(ctx context.Context, entityID string) ([]domain.LocationGroup, error) {
	if m.listByMemberFn != nil {
		return m.listByMemberFn(ctx, entityID)
	}
	return nil, nil
}

func (m *mockGroupStore) BatchWrite(ctx context.Context, mutations []domain.MembershipMutation) error {
	m.mu.Lock()
	m.batchWrites++
	m.mu.Unlock()
	if m.batchWriteFn != nil {
		return m.batchWriteFn(ctx, mutations)
	}
	return nil
}

func (m *mockGroupStore) RecordMessage(ctx context.Context, groupID, text string, at time.Time) error {
	if m.recordMessageFn != nil {
		return m.recordMessageFn(ctx, groupID, text, at)
	}
	return nil
}

// --- Mock CacheService ---

var errCacheMiss = errors.New("cache miss")

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
	gets atomic.Int32
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, errCacheMiss
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock SyncScheduler ---

type mockScheduler struct {
	scheduleFn func(ctx context.Context, entityID string, c domain.Coordinate) error
	calls      int
}

func (m *mockScheduler) ScheduleSync(ctx context.Context, entityID string, c domain.Coordinate) error {
	m.calls++
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, entityID, c)
	}
	return nil
}
