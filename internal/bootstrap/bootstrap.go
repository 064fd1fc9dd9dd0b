// Package bootstrap assembles the stores and core services shared by the
// commands from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/huddle/internal/adapters/memory"
	"github.com/samirrijal/huddle/internal/adapters/postgres"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/metrics"
)

// Core holds the configured stores and the services built on them.
type Core struct {
	DB         *postgres.DB // nil for the memory driver
	Directory  ports.DirectoryStore
	Groups     ports.GroupStore
	Proximity  *usecases.ProximityService
	Membership *usecases.MembershipService
}

// Open connects the configured store driver and builds the proximity and
// membership services. cache may be nil.
func Open(ctx context.Context, cfg *config.Config, cache ports.CacheService) (*Core, error) {
	core := &Core{}

	switch cfg.Store.Driver {
	case "memory":
		store := memory.NewStore()
		core.Directory, core.Groups = store, store
		slog.Warn("using in-memory store; state is lost on restart")
	default:
		db, err := postgres.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		core.DB = db
		core.Directory = postgres.NewEntityRepo(db)
		core.Groups = postgres.NewGroupRepo(db)
	}

	core.Proximity = usecases.NewProximityService(core.Directory, cache, usecases.ProximityOptions{
		Precision:           cfg.Proximity.GeohashPrecision,
		DefaultRadiusMeters: cfg.Proximity.DefaultRadiusMeters,
		MaxRadiusMeters:     cfg.Proximity.MaxRadiusMeters,
		CacheTTLSeconds:     cfg.Proximity.CacheTTLSeconds,
	})
	core.Membership = usecases.NewMembershipService(core.Groups, core.Directory, usecases.MembershipOptions{
		Precision:       cfg.Proximity.GeohashPrecision,
		MinRadiusMeters: cfg.Membership.MinRadiusMeters,
		MaxRadiusMeters: cfg.Membership.MaxRadiusMeters,
		StickyLeave:     cfg.Membership.StickyLeave,
	})
	return core, nil
}

// WatchPool refreshes the db pool gauges until ctx is done.
func (c *Core) WatchPool(ctx context.Context, every time.Duration) {
	if c.DB == nil {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.UpdateDBPoolMetrics(c.DB.Pool.Stat())
		}
	}
}

// Close releases the database pool, if any.
func (c *Core) Close() {
	if c.DB != nil {
		c.DB.Close()
	}
}
