//go:build integration
// +build integration

package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/huddle/internal/adapters/postgres"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
)

func setupDB(t *testing.T) *postgres.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	cfg, err := config.Load("huddle-test")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 5)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Pool.Exec(ctx, `TRUNCATE entities, location_groups`)
	require.NoError(t, err)
	return db
}

func entry(t *testing.T, id string, c domain.Coordinate) *domain.GeoIndexEntry {
	t.Helper()
	hash, err := geospatial.Encode(c, geospatial.DefaultPrecision)
	require.NoError(t, err)
	return &domain.GeoIndexEntry{EntityID: id, Coordinate: c, Geohash: hash}
}

func group(t *testing.T, id string, c domain.Coordinate, radius float64, members ...string) *domain.LocationGroup {
	t.Helper()
	hash, err := geospatial.Encode(c, geospatial.DefaultPrecision)
	require.NoError(t, err)
	return &domain.LocationGroup{
		ID: id, Name: "Group " + id, CreatorID: members[0],
		Center: c, CenterGeohash: hash, RadiusMeters: radius,
		MemberIDs: members, OptedOutIDs: []string{}, IsActive: true, CreatedAt: time.Now().UTC(),
	}
}

var nyc = domain.Coordinate{Latitude: 40.7128, Longitude: -74.0060}

func TestEntityRepo_PutGetScan(t *testing.T) {
	db := setupDB(t)
	repo := postgres.NewEntityRepo(db)
	ctx := context.Background()

	e := entry(t, "u1", nyc)
	require.NoError(t, repo.PutEntry(ctx, e))
	assert.False(t, e.LastUpdated.IsZero())

	got, err := repo.GetEntry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, e.Geohash, got.Geohash)
	assert.InDelta(t, nyc.Latitude, got.Coordinate.Latitude, 1e-9)

	// Overwrite in place.
	moved := entry(t, "u1", domain.Coordinate{Latitude: 51.5074, Longitude: -0.1278})
	require.NoError(t, repo.PutEntry(ctx, moved))
	got, err = repo.GetEntry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, moved.Geohash, got.Geohash)
	assert.False(t, got.LastUpdated.Before(e.LastUpdated))

	// Byte-order range scan.
	hits, err := repo.RangeScan(ctx, "gcp", "gcp~")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "u1", hits[0].EntityID)

	hits, err = repo.RangeScan(ctx, "dr5", "dr5~")
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = repo.GetEntry(ctx, "ghost")
	assert.True(t, errors.Is(err, domain.ErrMissingLocation))
}

func TestEntityRepo_OlderObservationDoesNotClobber(t *testing.T) {
	db := setupDB(t)
	repo := postgres.NewEntityRepo(db)
	ctx := context.Background()
	t0 := time.Now().UTC().Truncate(time.Microsecond)

	newer := entry(t, "u1", domain.Coordinate{Latitude: 51.5074, Longitude: -0.1278})
	newer.ObservedAt = t0.Add(time.Second)
	require.NoError(t, repo.PutEntry(ctx, newer))

	older := entry(t, "u1", nyc)
	older.ObservedAt = t0
	err := repo.PutEntry(ctx, older)
	assert.ErrorIs(t, err, domain.ErrSuperseded)

	got, err := repo.GetEntry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, newer.Geohash, got.Geohash)
	assert.True(t, got.ObservedAt.Equal(newer.ObservedAt))
}

func TestEntityRepo_SkipsMalformedRows(t *testing.T) {
	db := setupDB(t)
	repo := postgres.NewEntityRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.PutEntry(ctx, entry(t, "good", nyc)))
	_, err := db.Pool.Exec(ctx, `INSERT INTO entities (id, latitude, longitude, geohash, last_updated)
		VALUES ('', 40.7, -74.0, 'dr5reg0', now())`)
	require.NoError(t, err)

	hits, err := repo.RangeScan(ctx, "dr5", "dr5~")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "good", hits[0].EntityID)
}

func TestGroupRepo_BatchWriteAtomic(t *testing.T) {
	db := setupDB(t)
	entities := postgres.NewEntityRepo(db)
	groups := postgres.NewGroupRepo(db)
	ctx := context.Background()

	require.NoError(t, entities.PutEntry(ctx, entry(t, "u1", nyc)))
	require.NoError(t, groups.Create(ctx, group(t, "g1", nyc, 100, "creator")))

	err := groups.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u1", Op: domain.OpJoin},
		{GroupID: "ghost", EntityID: "u1", Op: domain.OpJoin},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGroupNotFound))

	g, err := groups.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, g.HasMember("u1"), "failed batch must not be partially applied")

	require.NoError(t, groups.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u1", Op: domain.OpJoin},
	}))
	g, err = groups.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"creator", "u1"}, g.MemberIDs)

	e, err := entities.GetEntry(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"g1"}, e.GroupIDs)

	member, err := groups.ListByMember(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, member, 1)
	assert.Equal(t, "g1", member[0].ID)
}

func TestGroupRepo_LeaveDeactivatesEmptyGroup(t *testing.T) {
	db := setupDB(t)
	groups := postgres.NewGroupRepo(db)
	ctx := context.Background()

	require.NoError(t, groups.Create(ctx, group(t, "g1", nyc, 100, "creator")))
	require.NoError(t, groups.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "creator", Op: domain.OpLeave, OptOut: true},
	}))

	g, err := groups.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, g.MemberIDs)
	assert.False(t, g.IsActive)
	assert.True(t, g.HasOptedOut("creator"))

	active, err := groups.RangeScanActive(ctx, "dr5", "dr5~")
	require.NoError(t, err)
	assert.Empty(t, active)

	err = groups.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u2", Op: domain.OpJoin},
	})
	assert.True(t, errors.Is(err, domain.ErrGroupInactive))
}

func TestGroupRepo_ParticipantsAndLastMessage(t *testing.T) {
	db := setupDB(t)
	repo := postgres.NewGroupRepo(db)
	ctx := context.Background()

	g := group(t, "g1", nyc, 500, "creator")
	g.CreatorName = "Cora"
	g.ParticipantNames = map[string]string{"creator": "Cora"}
	require.NoError(t, repo.Create(ctx, g))
	assert.Equal(t, 1, g.ParticipantCount)

	require.NoError(t, repo.BatchWrite(ctx, []domain.MembershipMutation{
		{GroupID: "g1", EntityID: "u1", EntityName: "Uma", Op: domain.OpJoin},
		{GroupID: "g1", EntityID: "u2", Op: domain.OpJoin},
	}))
	got, err := repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ParticipantCount)
	assert.Equal(t, "Cora", got.CreatorName)
	assert.Equal(t, map[string]string{"creator": "Cora", "u1": "Uma"}, got.ParticipantNames)
	assert.Nil(t, got.LastMessageAt)

	require.NoError(t, repo.BatchWrite(ctx, []domain.MembershipMutation{{GroupID: "g1", EntityID: "u1", Op: domain.OpLeave}}))
	got, err = repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.ParticipantCount)
	assert.NotContains(t, got.ParticipantNames, "u1")

	t0 := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, repo.RecordMessage(ctx, "g1", "second", t0.Add(time.Minute)))
	require.NoError(t, repo.RecordMessage(ctx, "g1", "first", t0))
	got, err = repo.GetByID(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "second", got.LastMessage)
	require.NotNil(t, got.LastMessageAt)
	assert.True(t, got.LastMessageAt.Equal(t0.Add(time.Minute)))

	assert.ErrorIs(t, repo.RecordMessage(ctx, "ghost", "x", t0), domain.ErrGroupNotFound)
}
