package usecases_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
)

type scriptedSource struct {
	mu     sync.Mutex
	coords []domain.Coordinate
}

func (s *scriptedSource) Current(ctx context.Context) (domain.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.coords[0]
	if len(s.coords) > 1 {
		s.coords = s.coords[1:]
	}
	return c, nil
}

type recordingSink struct {
	mu      sync.Mutex
	reports []domain.Coordinate
}

func (s *recordingSink) ReportLocation(ctx context.Context, entityID string, c domain.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, c)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func TestLocationReporter_MovementThreshold(t *testing.T) {
	source := &scriptedSource{coords: []domain.Coordinate{
		nyc,
		geospatial.Destination(nyc, 0, 10),
		geospatial.Destination(nyc, 0, 60),
	}}
	sink := &recordingSink{}
	reporter := usecases.NewLocationReporter("e", source, sink, time.Minute, 50)
	ctx := context.Background()

	for i, want := range []bool{true, false, true} {
		sent, err := reporter.ReportOnce(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sent != want {
			t.Errorf("report %d: expected sent=%v, got %v", i, want, sent)
		}
	}
	if sink.count() != 2 {
		t.Errorf("expected 2 reports, got %d", sink.count())
	}
}

func TestLocationReporter_NoThresholdAlwaysReports(t *testing.T) {
	source := &scriptedSource{coords: []domain.Coordinate{nyc}}
	sink := &recordingSink{}
	reporter := usecases.NewLocationReporter("e", source, sink, time.Minute, 0)

	for i := 0; i < 3; i++ {
		_, _ = reporter.ReportOnce(context.Background())
	}
	if sink.count() != 3 {
		t.Errorf("expected 3 reports, got %d", sink.count())
	}
}

func TestLocationReporter_Run(t *testing.T) {
	source := &scriptedSource{coords: []domain.Coordinate{nyc}}
	sink := &recordingSink{}
	reporter := usecases.NewLocationReporter("e", source, sink, 10*time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()
	if err := reporter.Run(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sink.count() < 2 {
		t.Errorf("expected an immediate report plus ticks, got %d", sink.count())
	}
}
