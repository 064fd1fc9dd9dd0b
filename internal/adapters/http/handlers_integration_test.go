//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/samirrijal/huddle/internal/adapters/http"
	"github.com/samirrijal/huddle/internal/adapters/postgres"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/config"
)

// setupTestDB connects to the migrated test database and empties it.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("huddle-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 5)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `TRUNCATE entities, location_groups`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return db
}

// setupTestDeps creates dependencies with real repos, no cache or broker.
func setupTestDeps(t *testing.T, db *postgres.DB) *http.Dependencies {
	entities := postgres.NewEntityRepo(db)
	groups := postgres.NewGroupRepo(db)

	proximity := usecases.NewProximityService(entities, nil, usecases.ProximityOptions{})
	membership := usecases.NewMembershipService(groups, entities, usecases.MembershipOptions{StickyLeave: true})
	return &http.Dependencies{
		Proximity:  proximity,
		Membership: membership,
		Locations:  usecases.NewLocationService(proximity, membership, nil, nil),
		Chat:       usecases.NewChatService(groups, nil),
		Tracker:    usecases.NewNearbyTracker(proximity),
		DB:         db,
	}
}

func TestNearby_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	app := setupApp(setupTestDeps(t, db))
	report(t, app, "u1", nyc)
	report(t, app, "u2", domain.Coordinate{Latitude: 40.7137, Longitude: -74.0060})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/entities/u1/nearby?radius=500", nil), -1)
	if err != nil {
		t.Fatalf("test request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var hits []domain.NearbyEntity
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityID != "u2" {
		t.Fatalf("expected only u2, got %+v", hits)
	}
}

func TestGroupLifecycle_Integration_WithRealDB(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db := setupTestDB(t)
	defer db.Close()

	app := setupApp(setupTestDeps(t, db))
	report(t, app, "creator", nyc)

	resp, _ := app.Test(jsonRequest("POST", "/v1/groups", `{"creatorId":"creator","name":"Lunch","radius":150}`), -1)
	if resp.StatusCode != 201 {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, readBody(t, resp.Body))
	}
	var g domain.LocationGroup
	json.NewDecoder(resp.Body).Decode(&g)

	// A second entity walking in joins automatically.
	report(t, app, "walker", domain.Coordinate{Latitude: 40.7135, Longitude: -74.0060})
	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/groups/"+g.ID, nil), -1)
	json.NewDecoder(resp.Body).Decode(&g)
	if !g.HasMember("walker") {
		t.Fatalf("expected walker to join, got %v", g.MemberIDs)
	}

	// Walking away leaves again.
	report(t, app, "walker", domain.Coordinate{Latitude: 40.7300, Longitude: -74.0060})
	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/groups/"+g.ID, nil), -1)
	json.NewDecoder(resp.Body).Decode(&g)
	if g.HasMember("walker") {
		t.Fatalf("expected walker to leave, got %v", g.MemberIDs)
	}

	// The last member leaving deactivates the group.
	resp, _ = app.Test(jsonRequest("POST", "/v1/groups/"+g.ID+"/leave", `{"entityId":"creator"}`), -1)
	if resp.StatusCode != 204 {
		t.Fatalf("leave: expected 204, got %d", resp.StatusCode)
	}
	resp, _ = app.Test(httptest.NewRequest("GET", "/v1/groups/"+g.ID, nil), -1)
	json.NewDecoder(resp.Body).Decode(&g)
	if g.IsActive {
		t.Error("expected group to be inactive once empty")
	}
}
