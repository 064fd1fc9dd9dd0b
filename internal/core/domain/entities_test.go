package domain_test

import (
	"testing"
	"time"

	"github.com/samirrijal/huddle/internal/core/domain"
)

func TestLocationReport_ObservedAt(t *testing.T) {
	received := time.Date(2026, 3, 1, 10, 0, 2, 0, time.UTC)
	reported := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 1, 10, 0, 9, 0, time.UTC)

	tests := []struct {
		name   string
		report domain.LocationReport
		want   time.Time
	}{
		{"broker time wins", domain.LocationReport{ReceivedAt: received, ReportedAt: reported}, received},
		{"reported time", domain.LocationReport{ReportedAt: reported}, reported},
		{"neither", domain.LocationReport{}, now},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.ObservedAt(now); !got.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
