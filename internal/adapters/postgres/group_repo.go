package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/validation"
)

// participant_count is generated from participants and is never written.
const (
	groupInsertColumns = `id, name, creator_id, creator_name, center_latitude, center_longitude,
	center_geohash, radius, participants, participant_names, opted_out, is_active, created_at`
	groupColumns = groupInsertColumns + `, participant_count, last_message, last_message_at`
)

// GroupRepo implements ports.GroupStore with pgx.
type GroupRepo struct {
	db *DB
}

// NewGroupRepo creates a new GroupRepo.
func NewGroupRepo(db *DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Create inserts a group and links it on its members' entities.
func (r *GroupRepo) Create(ctx context.Context, g *domain.LocationGroup) error {
	if err := validation.Record(g); err != nil {
		return err
	}
	if g.OptedOutIDs == nil {
		g.OptedOutIDs = []string{}
	}
	if g.ParticipantNames == nil {
		g.ParticipantNames = map[string]string{}
	}

	return r.db.RunInTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO location_groups (`+groupInsertColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING participant_count
		`, g.ID, g.Name, g.CreatorID, g.CreatorName, g.Center.Latitude, g.Center.Longitude, g.CenterGeohash,
			g.RadiusMeters, g.MemberIDs, g.ParticipantNames, g.OptedOutIDs, g.IsActive, g.CreatedAt).
			Scan(&g.ParticipantCount)
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE entities
			SET group_ids = array_append(array_remove(group_ids, $1), $1)
			WHERE id = ANY($2)
		`, g.ID, g.MemberIDs)
		if err != nil {
			return fmt.Errorf("link members: %w", err)
		}
		return nil
	})
}

// GetByID returns a group by ID.
func (r *GroupRepo) GetByID(ctx context.Context, id string) (*domain.LocationGroup, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+groupColumns+` FROM location_groups WHERE id = $1`, id)
	g, err := scanGroup(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := validation.Record(g); err != nil {
		return nil, err
	}
	return g, nil
}

// RangeScanActive returns active groups with start <= center_geohash <= end.
func (r *GroupRepo) RangeScanActive(ctx context.Context, start, end string) ([]domain.LocationGroup, error) {
	return r.list(ctx, `
		SELECT `+groupColumns+`
		FROM location_groups
		WHERE is_active AND center_geohash >= $1 AND center_geohash <= $2
		ORDER BY id
	`, start, end)
}

// ListByMember returns groups whose participants contain entityID.
func (r *GroupRepo) ListByMember(ctx context.Context, entityID string) ([]domain.LocationGroup, error) {
	return r.list(ctx, `
		SELECT `+groupColumns+`
		FROM location_groups
		WHERE participants @> ARRAY[$1]::text[]
		ORDER BY id
	`, entityID)
}

// BatchWrite applies all mutations in one transaction. Affected groups are
// locked in ID order before any update is queued.
func (r *GroupRepo) BatchWrite(ctx context.Context, mutations []domain.MembershipMutation) error {
	if len(mutations) == 0 {
		return nil
	}
	ordered := append([]domain.MembershipMutation(nil), mutations...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].GroupID < ordered[j].GroupID })

	return r.db.RunInTx(ctx, func(tx pgx.Tx) error {
		active := make(map[string]bool, len(ordered))
		for _, m := range ordered {
			if _, locked := active[m.GroupID]; locked {
				continue
			}
			var isActive bool
			err := tx.QueryRow(ctx, `SELECT is_active FROM location_groups WHERE id = $1 FOR UPDATE`, m.GroupID).Scan(&isActive)
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("batch %s on %s: %w", m.Op, m.GroupID, domain.ErrGroupNotFound)
			}
			if err != nil {
				return fmt.Errorf("lock group %s: %w", m.GroupID, err)
			}
			active[m.GroupID] = isActive
		}

		batch := &pgx.Batch{}
		for _, m := range ordered {
			switch m.Op {
			case domain.OpJoin:
				if !active[m.GroupID] {
					return fmt.Errorf("batch join %s: %w", m.GroupID, domain.ErrGroupInactive)
				}
				batch.Queue(`
					UPDATE location_groups
					SET participants = CASE WHEN $2 = ANY(participants) THEN participants
					                        ELSE array_append(participants, $2) END,
					    participant_names = CASE WHEN $3 <> '' THEN participant_names || jsonb_build_object($2::text, $3::text)
					                             ELSE participant_names END,
					    opted_out = array_remove(opted_out, $2)
					WHERE id = $1
				`, m.GroupID, m.EntityID, m.EntityName)
				batch.Queue(`
					UPDATE entities
					SET group_ids = array_append(array_remove(group_ids, $1), $1)
					WHERE id = $2
				`, m.GroupID, m.EntityID)
			case domain.OpLeave:
				batch.Queue(`
					UPDATE location_groups
					SET participants = array_remove(participants, $2),
					    participant_names = participant_names - $2::text,
					    opted_out = CASE WHEN $3 AND NOT ($2 = ANY(opted_out))
					                     THEN array_append(opted_out, $2) ELSE opted_out END,
					    is_active = is_active AND cardinality(array_remove(participants, $2)) > 0
					WHERE id = $1
				`, m.GroupID, m.EntityID, m.OptOut)
				batch.Queue(`
					UPDATE entities SET group_ids = array_remove(group_ids, $1) WHERE id = $2
				`, m.GroupID, m.EntityID)
			default:
				return fmt.Errorf("batch op %q: %w", m.Op, domain.ErrInvalidInput)
			}
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("batch exec: %w", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("batch close: %w", err)
		}
		return nil
	})
}

// RecordMessage sets the group's last message unless a newer one is stored.
func (r *GroupRepo) RecordMessage(ctx context.Context, groupID, text string, at time.Time) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE location_groups
		SET last_message = $2, last_message_at = $3
		WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $3)
	`, groupID, text, at.UTC())
	if err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.db.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM location_groups WHERE id = $1)`, groupID).Scan(&exists); err != nil {
		return fmt.Errorf("record message: %w", err)
	}
	if !exists {
		return domain.ErrGroupNotFound
	}
	return nil
}

func (r *GroupRepo) list(ctx context.Context, query string, args ...any) ([]domain.LocationGroup, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	groups := []domain.LocationGroup{}
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		if err := validation.Record(g); err != nil {
			slog.WarnContext(ctx, "skipping malformed group", "group_id", g.ID, "error", err)
			continue
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func scanGroup(row scanner) (*domain.LocationGroup, error) {
	var g domain.LocationGroup
	if err := row.Scan(
		&g.ID, &g.Name, &g.CreatorID, &g.CreatorName, &g.Center.Latitude, &g.Center.Longitude,
		&g.CenterGeohash, &g.RadiusMeters, &g.MemberIDs, &g.ParticipantNames, &g.OptedOutIDs,
		&g.IsActive, &g.CreatedAt, &g.ParticipantCount, &g.LastMessage, &g.LastMessageAt,
	); err != nil {
		return nil, err
	}
	return &g, nil
}
