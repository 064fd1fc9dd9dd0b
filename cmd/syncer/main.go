package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"

	natsadapter "github.com/samirrijal/huddle/internal/adapters/nats"
	"github.com/samirrijal/huddle/internal/bootstrap"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/logging"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
	"github.com/samirrijal/huddle/internal/workflows"
)

// The syncer consumes queued location reports and applies each one to the
// index and the group memberships.
func main() {
	cfg, err := config.Load("huddle-syncer")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "huddle-syncer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	core, err := bootstrap.Open(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer core.Close()
	go core.WatchPool(ctx, 15*time.Second)

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats subscriber: %v", err)
	}
	defer sub.Close()

	var scheduler ports.SyncScheduler
	if cfg.Temporal.Enabled {
		tc, err := client.Dial(client.Options{
			HostPort:  cfg.Temporal.HostPort,
			Namespace: cfg.Temporal.Namespace,
		})
		if err != nil {
			slog.Warn("temporal unavailable, syncing membership inline", "error", err)
		} else {
			defer tc.Close()
			scheduler = workflows.NewScheduler(tc, cfg.Temporal.TaskQueue)
		}
	}

	locations := usecases.NewLocationService(core.Proximity, core.Membership, pub, scheduler)

	err = sub.SubscribeLocationReports(ctx, func(ctx context.Context, report *domain.LocationReport) error {
		entry, err := locations.ReportAt(ctx, report.EntityID, report.Coordinate, report.ObservedAt(time.Now()))
		switch {
		case errors.Is(err, domain.ErrSuperseded):
			slog.DebugContext(ctx, "stale location report skipped", "entity_id", report.EntityID)
			return nil
		case err != nil && entry != nil:
			// Indexed; the membership sync catches up on the next report.
			slog.WarnContext(ctx, "membership sync failed", "entity_id", report.EntityID, "error", err)
			return nil
		}
		return err
	})
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	slog.Info("syncer started", "store", cfg.Store.Driver)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("syncer stopping")
}
