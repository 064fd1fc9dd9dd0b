package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/validation"
)

const entryColumns = `id, latitude, longitude, geohash, observed_at, last_updated, group_ids`

// EntityRepo implements ports.DirectoryStore with pgx.
type EntityRepo struct {
	db *DB
}

// NewEntityRepo creates a new EntityRepo.
func NewEntityRepo(db *DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// PutEntry upserts the entity's location. last_updated is stamped from the
// database clock. A row is only overwritten by a write observed no earlier
// than the stored one; an older write fails with domain.ErrSuperseded.
func (r *EntityRepo) PutEntry(ctx context.Context, e *domain.GeoIndexEntry) error {
	if err := validation.Record(e); err != nil {
		return err
	}

	var observedAt *time.Time
	if !e.ObservedAt.IsZero() {
		observedAt = &e.ObservedAt
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO entities (id, latitude, longitude, geohash, observed_at, last_updated)
		VALUES ($1, $2, $3, $4, COALESCE($5::timestamptz, clock_timestamp()), clock_timestamp())
		ON CONFLICT (id) DO UPDATE
		SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		    geohash = EXCLUDED.geohash, observed_at = EXCLUDED.observed_at,
		    last_updated = EXCLUDED.last_updated
		WHERE entities.observed_at <= EXCLUDED.observed_at
		RETURNING observed_at, last_updated, group_ids
	`, e.EntityID, e.Coordinate.Latitude, e.Coordinate.Longitude, e.Geohash, observedAt).
		Scan(&e.ObservedAt, &e.LastUpdated, &e.GroupIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		slog.DebugContext(ctx, "stale location write rejected", "entity_id", e.EntityID)
		return fmt.Errorf("entry %s: %w", e.EntityID, domain.ErrSuperseded)
	}
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// GetEntry returns the entity's entry.
func (r *EntityRepo) GetEntry(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM entities WHERE id = $1`, entityID)
	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMissingLocation
	}
	if err != nil {
		return nil, err
	}
	if err := validation.Record(e); err != nil {
		return nil, err
	}
	return e, nil
}

// RangeScan returns entries with start <= geohash <= end. The geohash
// column uses the "C" collation so comparisons are bytewise.
func (r *EntityRepo) RangeScan(ctx context.Context, start, end string) ([]domain.GeoIndexEntry, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+entryColumns+`
		FROM entities
		WHERE geohash >= $1 AND geohash <= $2
		ORDER BY geohash, id
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.GeoIndexEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if err := validation.Record(e); err != nil {
			slog.WarnContext(ctx, "skipping malformed entity", "entity_id", e.EntityID, "error", err)
			continue
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func scanEntry(row scanner) (*domain.GeoIndexEntry, error) {
	var e domain.GeoIndexEntry
	if err := row.Scan(
		&e.EntityID, &e.Coordinate.Latitude, &e.Coordinate.Longitude,
		&e.Geohash, &e.ObservedAt, &e.LastUpdated, &e.GroupIDs,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
