package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
)

// MembershipOptions tunes group creation and reconciliation.
type MembershipOptions struct {
	Precision       int
	MinRadiusMeters float64
	MaxRadiusMeters float64
	// StickyLeave records explicit leaves so reconciliation never re-adds
	// the entity automatically.
	StickyLeave bool
}

func (o MembershipOptions) withDefaults() MembershipOptions {
	if o.Precision <= 0 {
		o.Precision = geospatial.DefaultPrecision
	}
	if o.MinRadiusMeters <= 0 {
		o.MinRadiusMeters = 50
	}
	if o.MaxRadiusMeters <= 0 {
		o.MaxRadiusMeters = 5000
	}
	return o
}

// MembershipService keeps location-group membership consistent with
// entity positions.
type MembershipService struct {
	groups ports.GroupStore
	dir    ports.DirectoryStore
	opts   MembershipOptions
	now    func() time.Time
}

// NewMembershipService creates a new MembershipService.
func NewMembershipService(groups ports.GroupStore, dir ports.DirectoryStore, opts MembershipOptions) *MembershipService {
	return &MembershipService{groups: groups, dir: dir, opts: opts.withDefaults(), now: time.Now}
}

// Reconcile joins the entity to every group whose radius now contains c and
// removes it from every group it has moved out of. All changes commit in one
// batch or not at all. On success groups is updated in place, so
// reconciling again with the same inputs is a no-op.
func (s *MembershipService) Reconcile(ctx context.Context, entityID string, c domain.Coordinate, groups []domain.LocationGroup) (*domain.ReconcileResult, error) {
	if entityID == "" {
		return nil, fmt.Errorf("reconcile: entity id required: %w", domain.ErrInvalidInput)
	}
	if !c.Valid() {
		return nil, fmt.Errorf("reconcile: %w", domain.ErrInvalidCoordinate)
	}

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanReconcile, trace.WithAttributes(
		attribute.String("entity_id", entityID),
		attribute.Int("groups", len(groups)),
	))
	defer span.End()

	result := &domain.ReconcileResult{Joined: []string{}, Left: []string{}}
	var mutations []domain.MembershipMutation
	for i := range groups {
		g := &groups[i]
		d := geospatial.DistanceMeters(c, g.Center)
		member := g.HasMember(entityID)

		switch {
		case d <= g.RadiusMeters && !member && !g.HasOptedOut(entityID) && g.IsActive:
			mutations = append(mutations, domain.MembershipMutation{GroupID: g.ID, EntityID: entityID, Op: domain.OpJoin})
			result.Joined = append(result.Joined, g.ID)
		case d > g.RadiusMeters && member:
			mutations = append(mutations, domain.MembershipMutation{GroupID: g.ID, EntityID: entityID, Op: domain.OpLeave})
			result.Left = append(result.Left, g.ID)
		}
	}
	if len(mutations) == 0 {
		return result, nil
	}

	sort.Slice(mutations, func(i, j int) bool { return mutations[i].GroupID < mutations[j].GroupID })
	if err := s.groups.BatchWrite(ctx, mutations); err != nil {
		metrics.MembershipBatchFailures.Inc()
		span.RecordError(err)
		return nil, unavailable("membership batch", err)
	}

	for i := range groups {
		applyMutations(&groups[i], mutations)
	}
	sort.Strings(result.Joined)
	sort.Strings(result.Left)
	metrics.MembershipChanges.WithLabelValues(string(domain.OpJoin)).Add(float64(len(result.Joined)))
	metrics.MembershipChanges.WithLabelValues(string(domain.OpLeave)).Add(float64(len(result.Left)))

	slog.DebugContext(ctx, "membership reconciled",
		"entity_id", entityID, "joined", len(result.Joined), "left", len(result.Left))
	return result, nil
}

// SyncEntity reconciles the entity against every group it could be affected
// by: active groups whose centre lies within the largest group radius of c,
// plus groups it already belongs to.
func (s *MembershipService) SyncEntity(ctx context.Context, entityID string, c domain.Coordinate) (*domain.ReconcileResult, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanSyncEntity, trace.WithAttributes(
		attribute.String("entity_id", entityID),
	))
	defer span.End()

	nearby, err := s.groupsAround(ctx, c)
	if err != nil {
		return nil, err
	}
	joined, err := s.groups.ListByMember(ctx, entityID)
	if err != nil {
		return nil, unavailable("list member groups", err)
	}

	byID := make(map[string]domain.LocationGroup, len(nearby)+len(joined))
	for _, g := range nearby {
		byID[g.ID] = g
	}
	for _, g := range joined {
		byID[g.ID] = g
	}
	candidates := make([]domain.LocationGroup, 0, len(byID))
	for _, g := range byID {
		candidates = append(candidates, g)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	return s.Reconcile(ctx, entityID, c, candidates)
}

// SyncIndexed syncs the entity against its currently indexed coordinate, so a
// sync queued for an older report cannot undo a newer one. fallback is used
// only when the entity has no indexed entry.
func (s *MembershipService) SyncIndexed(ctx context.Context, entityID string, fallback domain.Coordinate) (*domain.ReconcileResult, error) {
	c := fallback
	entry, err := s.locate(ctx, entityID)
	switch {
	case err == nil:
		c = entry.Coordinate
	case !errors.Is(err, domain.ErrMissingLocation):
		return nil, err
	}
	return s.SyncEntity(ctx, entityID, c)
}

// ParticipantOption sets optional details recorded for a group participant.
type ParticipantOption func(*participant)

type participant struct {
	name string
}

// WithDisplayName records the participant's display name on the group.
func WithDisplayName(name string) ParticipantOption {
	return func(p *participant) { p.name = strings.TrimSpace(name) }
}

func participantFrom(opts []ParticipantOption) participant {
	var p participant
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// CreateGroup creates a group centred on the creator's coordinate with the
// creator as sole member and returns its ID.
func (s *MembershipService) CreateGroup(ctx context.Context, creatorID string, creatorCoordinate *domain.Coordinate, name string, radiusMeters float64, opts ...ParticipantOption) (string, error) {
	name = strings.TrimSpace(name)
	if creatorID == "" || name == "" {
		return "", fmt.Errorf("create group: creator and name required: %w", domain.ErrInvalidInput)
	}
	if creatorCoordinate == nil {
		return "", fmt.Errorf("create group: %w", domain.ErrMissingLocation)
	}
	if math.IsNaN(radiusMeters) || radiusMeters < s.opts.MinRadiusMeters || radiusMeters > s.opts.MaxRadiusMeters {
		return "", fmt.Errorf("create group radius %v outside [%v, %v]: %w",
			radiusMeters, s.opts.MinRadiusMeters, s.opts.MaxRadiusMeters, domain.ErrInvalidRadius)
	}
	hash, err := geospatial.Encode(*creatorCoordinate, s.opts.Precision)
	if err != nil {
		return "", err
	}

	creator := participantFrom(opts)
	names := map[string]string{}
	if creator.name != "" {
		names[creatorID] = creator.name
	}
	group := &domain.LocationGroup{
		ID:               uuid.NewString(),
		Name:             name,
		CreatorID:        creatorID,
		CreatorName:      creator.name,
		Center:           *creatorCoordinate,
		CenterGeohash:    hash,
		RadiusMeters:     radiusMeters,
		MemberIDs:        []string{creatorID},
		OptedOutIDs:      []string{},
		ParticipantNames: names,
		ParticipantCount: 1,
		IsActive:         true,
		CreatedAt:        s.now().UTC(),
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return "", unavailable("create group", err)
	}

	slog.InfoContext(ctx, "location group created",
		"group_id", group.ID, "entity_id", creatorID, "radius_m", radiusMeters)
	return group.ID, nil
}

// CreateGroupForEntity creates a group centred on the creator's indexed location.
func (s *MembershipService) CreateGroupForEntity(ctx context.Context, creatorID, name string, radiusMeters float64, opts ...ParticipantOption) (string, error) {
	entry, err := s.locate(ctx, creatorID)
	if err != nil {
		return "", err
	}
	return s.CreateGroup(ctx, creatorID, &entry.Coordinate, name, radiusMeters, opts...)
}

// GetGroup returns a group by ID.
func (s *MembershipService) GetGroup(ctx context.Context, groupID string) (*domain.LocationGroup, error) {
	g, err := s.groups.GetByID(ctx, groupID)
	if errors.Is(err, domain.ErrGroupNotFound) {
		return nil, fmt.Errorf("group %s: %w", groupID, err)
	}
	if err != nil {
		return nil, unavailable("get group", err)
	}
	return g, nil
}

// LeaveGroup removes the entity from the group. With sticky leaves enabled
// the entity is not re-added automatically afterwards. A group left empty
// is deactivated for good.
func (s *MembershipService) LeaveGroup(ctx context.Context, entityID, groupID string) error {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.HasMember(entityID) {
		return fmt.Errorf("leave group %s: %w", groupID, domain.ErrNotMember)
	}

	err = s.groups.BatchWrite(ctx, []domain.MembershipMutation{{
		GroupID:  groupID,
		EntityID: entityID,
		Op:       domain.OpLeave,
		OptOut:   s.opts.StickyLeave,
	}})
	if err != nil {
		metrics.MembershipBatchFailures.Inc()
		return unavailable("leave group", err)
	}
	metrics.MembershipChanges.WithLabelValues(string(domain.OpLeave)).Inc()
	return nil
}

// JoinGroup adds the entity to a group it is currently inside of, clearing
// any earlier opt-out.
func (s *MembershipService) JoinGroup(ctx context.Context, entityID, groupID string, opts ...ParticipantOption) error {
	g, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if !g.IsActive {
		return fmt.Errorf("join group %s: %w", groupID, domain.ErrGroupInactive)
	}
	if g.HasMember(entityID) {
		return nil
	}
	entry, err := s.locate(ctx, entityID)
	if err != nil {
		return err
	}
	if d := geospatial.DistanceMeters(entry.Coordinate, g.Center); d > g.RadiusMeters {
		return fmt.Errorf("join group %s: %.0f m from centre exceeds radius %.0f m: %w",
			groupID, d, g.RadiusMeters, domain.ErrInvalidRadius)
	}

	err = s.groups.BatchWrite(ctx, []domain.MembershipMutation{{
		GroupID:    groupID,
		EntityID:   entityID,
		EntityName: participantFrom(opts).name,
		Op:         domain.OpJoin,
	}})
	if err != nil {
		metrics.MembershipBatchFailures.Inc()
		return unavailable("join group", err)
	}
	metrics.MembershipChanges.WithLabelValues(string(domain.OpJoin)).Inc()
	return nil
}

// AvailableGroups lists active groups whose radius contains c and that the
// entity has not joined, nearest first.
func (s *MembershipService) AvailableGroups(ctx context.Context, entityID string, c domain.Coordinate) ([]domain.GroupWithDistance, error) {
	groups, err := s.groupsAround(ctx, c)
	if err != nil {
		return nil, err
	}

	out := make([]domain.GroupWithDistance, 0, len(groups))
	for _, g := range groups {
		if !g.IsActive || g.HasMember(entityID) {
			continue
		}
		d := geospatial.DistanceMeters(c, g.Center)
		if d > g.RadiusMeters {
			continue
		}
		out = append(out, domain.GroupWithDistance{Group: g, DistanceMeters: d})
	}
	sortByDistance(out)
	return out, nil
}

// MemberGroups lists the groups the entity belongs to with their distance
// from c, nearest first.
func (s *MembershipService) MemberGroups(ctx context.Context, entityID string, c domain.Coordinate) ([]domain.GroupWithDistance, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("member groups: %w", domain.ErrInvalidCoordinate)
	}
	groups, err := s.groups.ListByMember(ctx, entityID)
	if err != nil {
		return nil, unavailable("list member groups", err)
	}

	out := make([]domain.GroupWithDistance, 0, len(groups))
	for _, g := range groups {
		out = append(out, domain.GroupWithDistance{Group: g, DistanceMeters: geospatial.DistanceMeters(c, g.Center)})
	}
	sortByDistance(out)
	return out, nil
}

// AvailableGroupsFor is AvailableGroups at the entity's indexed location.
func (s *MembershipService) AvailableGroupsFor(ctx context.Context, entityID string) ([]domain.GroupWithDistance, error) {
	entry, err := s.locate(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.AvailableGroups(ctx, entityID, entry.Coordinate)
}

// MemberGroupsFor is MemberGroups at the entity's indexed location.
func (s *MembershipService) MemberGroupsFor(ctx context.Context, entityID string) ([]domain.GroupWithDistance, error) {
	entry, err := s.locate(ctx, entityID)
	if err != nil {
		return nil, err
	}
	return s.MemberGroups(ctx, entityID, entry.Coordinate)
}

// groupsAround range-scans active groups whose centre could lie within the
// largest permitted group radius of c.
func (s *MembershipService) groupsAround(ctx context.Context, c domain.Coordinate) ([]domain.LocationGroup, error) {
	start := time.Now()
	ranges, err := geospatial.QueryBounds(c, s.opts.MaxRadiusMeters, s.opts.Precision)
	if err != nil {
		return nil, err
	}
	groups, err := scanRanges(ctx, ranges, s.groups.RangeScanActive)
	if err != nil {
		return nil, unavailable("group range scan", err)
	}
	metrics.NearbyCandidates.WithLabelValues("groups").Add(float64(len(groups)))
	metrics.ObserveSince(metrics.NearbyQueryDuration.WithLabelValues("groups"), start)

	seen := make(map[string]struct{}, len(groups))
	out := groups[:0]
	for _, g := range groups {
		if _, dup := seen[g.ID]; dup {
			continue
		}
		seen[g.ID] = struct{}{}
		out = append(out, g)
	}
	return out, nil
}

func (s *MembershipService) locate(ctx context.Context, entityID string) (*domain.GeoIndexEntry, error) {
	entry, err := s.dir.GetEntry(ctx, entityID)
	if errors.Is(err, domain.ErrMissingLocation) {
		return nil, fmt.Errorf("locate %s: %w", entityID, err)
	}
	if err != nil {
		return nil, unavailable("get entry", err)
	}
	return entry, nil
}

// applyMutations mirrors a committed batch onto a local group snapshot.
func applyMutations(g *domain.LocationGroup, mutations []domain.MembershipMutation) {
	for _, m := range mutations {
		if m.GroupID != g.ID {
			continue
		}
		switch m.Op {
		case domain.OpJoin:
			if !g.HasMember(m.EntityID) {
				g.MemberIDs = append(g.MemberIDs, m.EntityID)
			}
			g.OptedOutIDs = without(g.OptedOutIDs, m.EntityID)
		case domain.OpLeave:
			g.MemberIDs = without(g.MemberIDs, m.EntityID)
			if m.OptOut && !g.HasOptedOut(m.EntityID) {
				g.OptedOutIDs = append(g.OptedOutIDs, m.EntityID)
			}
			if len(g.MemberIDs) == 0 {
				g.IsActive = false
			}
		}
	}
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func sortByDistance(groups []domain.GroupWithDistance) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].DistanceMeters != groups[j].DistanceMeters {
			return groups[i].DistanceMeters < groups[j].DistanceMeters
		}
		return groups[i].Group.ID < groups[j].Group.ID
	})
}
