package usecases

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
)

type scanFunc[T any] func(ctx context.Context, start, end string) ([]T, error)

// scanRanges runs one scan per range concurrently and concatenates the
// results in range order. The first failure cancels the remaining scans.
func scanRanges[T any](ctx context.Context, ranges []domain.BoundingRange, scan scanFunc[T]) ([]T, error) {
	results := make([][]T, len(ranges))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range ranges {
		g.Go(func() error {
			sctx, span := telemetry.Tracer().Start(gctx, telemetry.SpanRangeScan, trace.WithAttributes(
				attribute.String("range.start", r.Start),
				attribute.String("range.end", r.End),
			))
			defer span.End()

			items, err := scan(sctx, r.Start, r.End)
			if err != nil {
				span.RecordError(err)
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var total int
	for _, items := range results {
		total += len(items)
	}
	out := make([]T, 0, total)
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

// domainErrors are store results that describe the data, not the store's
// health.
var domainErrors = []error{
	context.Canceled,
	domain.ErrInvalidCoordinate,
	domain.ErrInvalidRadius,
	domain.ErrInvalidInput,
	domain.ErrMissingLocation,
	domain.ErrGroupNotFound,
	domain.ErrGroupInactive,
	domain.ErrNotMember,
	domain.ErrMalformedRecord,
	domain.ErrSuperseded,
}

// unavailable wraps a store failure as domain.ErrIndexUnavailable. Caller
// cancellation and domain errors are passed through untouched so they are
// not reported as an outage.
func unavailable(op string, err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIndexUnavailable, err)
}
