package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	natsadapter "github.com/samirrijal/huddle/internal/adapters/nats"
	"github.com/samirrijal/huddle/internal/core/domain"
	"github.com/samirrijal/huddle/internal/core/usecases"
	"github.com/samirrijal/huddle/internal/pkg/config"
	"github.com/samirrijal/huddle/internal/pkg/geospatial"
	"github.com/samirrijal/huddle/internal/pkg/logging"
)

// walk is a simulated device drifting up to step meters per read.
type walk struct {
	mu   sync.Mutex
	pos  domain.Coordinate
	step float64
	rng  *rand.Rand
}

func (w *walk) Current(ctx context.Context) (domain.Coordinate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > 0 {
		w.pos = geospatial.Destination(w.pos, w.rng.Float64()*360, w.rng.Float64()*w.step)
	}
	return w.pos, nil
}

// The reporter simulates a device: it queues its position on NATS at the
// configured interval for the syncer to apply.
func main() {
	id := flag.String("id", "", "entity id to report as")
	lat := flag.Float64("lat", 40.7128, "starting latitude")
	lon := flag.Float64("lon", -74.0060, "starting longitude")
	step := flag.Float64("step", 25, "maximum drift per report in meters; 0 stays put")
	seed := flag.Int64("seed", 1, "random seed for the drift")
	flag.Parse()

	if *id == "" {
		log.Fatal("usage: reporter -id <entity> [-lat 40.71 -lon -74.00 -step 25]")
	}

	cfg, err := config.Load("huddle-reporter")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "huddle-reporter")

	start := domain.Coordinate{Latitude: *lat, Longitude: *lon}
	if !start.Valid() {
		log.Fatalf("invalid starting coordinate %+v", start)
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats publisher: %v", err)
	}
	defer pub.Close()

	source := &walk{pos: start, step: *step, rng: rand.New(rand.NewSource(*seed))}
	reporter := usecases.NewLocationReporter(*id, source, pub, cfg.Location.ReportInterval, cfg.Location.MinMoveMeters)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("reporter started", "entity_id", *id, "interval", cfg.Location.ReportInterval.String())
	if err := reporter.Run(ctx); err != nil {
		log.Fatalf("reporter: %v", err)
	}
	slog.Info("reporter stopped")
}
