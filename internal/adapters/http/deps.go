package http

import (
	"github.com/nats-io/nats.go"

	"github.com/samirrijal/huddle/internal/adapters/postgres"
	"github.com/samirrijal/huddle/internal/adapters/valkey"
	"github.com/samirrijal/huddle/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	Proximity  *usecases.ProximityService
	Membership *usecases.MembershipService
	Locations  *usecases.LocationService
	Chat       *usecases.ChatService
	Tracker    *usecases.NearbyTracker
	NATS       *nats.Conn
	DB         *postgres.DB
	Cache      *valkey.Cache
}
