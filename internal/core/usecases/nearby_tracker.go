package usecases

import (
	"context"
	"sync"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
)

// NearbyFinder answers nearby queries around an entity's own location.
type NearbyFinder interface {
	NearbyFor(ctx context.Context, entityID string, radiusMeters float64) ([]domain.NearbyEntity, error)
}

type trackedQuery struct {
	cancel     context.CancelFunc
	superseded bool
}

// NearbyTracker enforces last-query-wins per origin: starting a query
// cancels the origin's previous one, whose caller gets domain.ErrSuperseded
// instead of stale results.
type NearbyTracker struct {
	finder NearbyFinder

	mu       sync.Mutex
	inflight map[string]*trackedQuery
}

// NewNearbyTracker creates a new NearbyTracker.
func NewNearbyTracker(finder NearbyFinder) *NearbyTracker {
	return &NearbyTracker{finder: finder, inflight: make(map[string]*trackedQuery)}
}

// Query runs a nearby query for originID, superseding any query still in
// flight for the same origin.
func (t *NearbyTracker) Query(ctx context.Context, originID string, radiusMeters float64) ([]domain.NearbyEntity, error) {
	qctx, cancel := context.WithCancel(ctx)
	q := &trackedQuery{cancel: cancel}

	t.mu.Lock()
	if prev, ok := t.inflight[originID]; ok {
		prev.superseded = true
		prev.cancel()
	}
	t.inflight[originID] = q
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		if t.inflight[originID] == q {
			delete(t.inflight, originID)
		}
		t.mu.Unlock()
		cancel()
	}()

	hits, err := t.finder.NearbyFor(qctx, originID, radiusMeters)

	t.mu.Lock()
	superseded := q.superseded
	t.mu.Unlock()
	if superseded {
		metrics.QueriesSuperseded.Inc()
		return nil, domain.ErrSuperseded
	}
	return hits, err
}

// InFlight returns the number of origins with a running query.
func (t *NearbyTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight)
}
