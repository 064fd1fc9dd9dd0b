package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.temporal.io/sdk/client"

	"github.com/samirrijal/huddle/internal/adapters/http"
	"github.com/samirrijal/huddle/internal/adapters/memory"
	natsadapter "github.com/samirrijal/huddle/internal/adapters/nats"
	"github.com/samirrijal/huddle/internal/adapters/valkey"
	"github.com/samirrijal/huddle/internal/bootstrap"
	"github.com/samirrijal/huddle/internal/core/ports"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/logging"
	"github.com/samirrijal/huddle/internal/pkg/telemetry"
	"github.com/samirrijal/huddle/internal/workflows"
)

func main() {
	cfg, err := config.Load("huddle-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "huddle-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.TempoAddr)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	// Cache (optional)
	var cache ports.CacheService
	vc, err := valkey.New(cfg.Valkey.Addr)
	if err != nil {
		slog.Warn("valkey unavailable, nearby results are not cached", "error", err)
	} else {
		defer vc.Close()
		cache = vc
	}

	core, err := bootstrap.Open(ctx, cfg, cache)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer core.Close()
	go core.WatchPool(ctx, 15*time.Second)

	// Events and chat go through NATS; without it they stay in process.
	var (
		publisher ports.EventPublisher
		channel   ports.MessageChannel
	)
	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats unavailable, using in-process bus", "error", err)
		bus := memory.NewBus()
		publisher, channel = bus, bus
	} else {
		defer pub.Close()
		publisher = pub

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			log.Fatalf("nats subscriber: %v", err)
		}
		defer sub.Close()
		channel = sub
	}

	natsConn, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		slog.Warn("nats ws conn unavailable", "error", err)
	}

	// Membership sync runs on Temporal when enabled, inline otherwise.
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

	deps := &http.Dependencies{
		Proximity:  core.Proximity,
		Membership: core.Membership,
		Locations:  usecases.NewLocationService(core.Proximity, core.Membership, publisher, scheduler),
		Chat:       usecases.NewChatService(core.Groups, channel),
		Tracker:    usecases.NewNearbyTracker(core.Proximity),
		NATS:       natsConn,
		DB:         core.DB,
		Cache:      vc,
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    256 * 1024,
		AppName:      "Huddle API",
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		MaxAge:       3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "store", cfg.Store.Driver, "temporal", scheduler != nil)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
