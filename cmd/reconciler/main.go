package main

import (
	"context"
	"log"
	"log/slog"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	natsadapter "github.com/samirrijal/huddle/internal/adapters/nats"
	"github.com/samirrijal/huddle/internal/bootstrap"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/logging"
	"github.com/samirrijal/huddle/internal/workflows"
)

// The reconciler is the Temporal worker running membership sync workflows
// scheduled by the API and the syncer.
func main() {
	cfg, err := config.Load("huddle-reconciler")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "huddle-reconciler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core, err := bootstrap.Open(ctx, cfg, nil)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer core.Close()

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.HostPort,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.MembershipSyncWorkflow)
	w.RegisterActivity(&workflows.MembershipActivities{
		Membership: core.Membership,
		Publisher:  pub,
	})

	slog.Info("reconciler worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
