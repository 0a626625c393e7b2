// Package bench orchestrates publisher and consumer fleets against a
// broker and wires their counters into the per-second aggregator.
package bench

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mqfire/mqfire/internal/collector"
	"github.com/mqfire/mqfire/internal/stats"
	"github.com/mqfire/mqfire/internal/worker"
)

// Options configure one load run.
type Options struct {
	Publishers int // publishing connections to spawn
	Consumers  int // subscribing connections to spawn

	// Worker is the per-connection template. Each spawned worker gets
	// its own seed (template seed plus its index) and a staggered start.
	Worker worker.Config

	Duration      time.Duration // per-worker lifetime; 0 runs until ctx cancel
	StartInterval time.Duration // connect stagger between successive workers
	DrainInterval time.Duration // snapshot cadence; default 1s
	Grace         time.Duration // aggregator settle window; 0 means the 5s default

	Collector      stats.Collector // receives one snapshot per drained second
	Run            *collector.RunStats
	Logger         *zap.Logger
	Tracer         trace.Tracer
	TracePublishes bool
}

func (o *Options) normalize() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Run == nil {
		o.Run = collector.NewRunStats()
	}
	if o.DrainInterval <= 0 {
		o.DrainInterval = time.Second
	}
	if o.Worker.Seed == 0 {
		o.Worker.Seed = time.Now().UnixNano()
	}
	if o.Duration > 0 && o.Worker.StopAfter == 0 {
		o.Worker.StopAfter = o.Duration
	}
}

// grace mirrors the aggregator's normalization so the settle wait and
// the drain target agree on how far behind now the drain runs.
func (o *Options) grace() time.Duration {
	switch {
	case o.Grace == 0:
		return 5 * time.Second
	case o.Grace < 0:
		return 0
	default:
		return o.Grace
	}
}

// Run spawns the fleets, drains per-second snapshots while they work,
// and returns the whole-run totals once the last second has settled.
func Run(ctx context.Context, opts Options) (collector.Stats, error) {
	opts.normalize()
	start := time.Now()

	registry := NewRegistry()
	agg := stats.New(stats.Options{
		Collector: opts.Collector,
		Actives:   registry,
		Interval:  opts.DrainInterval,
		Grace:     opts.Grace,
		Logger:    opts.Logger,
	})

	// The drain loop outlives the workers: seconds they filled right
	// before exiting still need the grace window to elapse.
	drainCtx, stopDrain := context.WithCancel(context.Background())
	defer stopDrain()
	drainDone := make(chan error, 1)
	go func() { drainDone <- agg.Run(drainCtx) }()

	var wg sync.WaitGroup
	spawn := func(index int, build func(worker.Options) runner) {
		cfg := opts.Worker
		cfg.Seed = opts.Worker.Seed + int64(index)
		cfg.StartAfter = time.Duration(index) * opts.StartInterval
		w := build(worker.Options{
			Config:         cfg,
			Aggregator:     agg,
			Run:            opts.Run,
			Presence:       registry,
			Logger:         opts.Logger,
			Tracer:         opts.Tracer,
			TracePublishes: opts.TracePublishes,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				opts.Logger.Warn("worker exited", zap.Error(err))
			}
		}()
	}

	for i := 0; i < opts.Publishers; i++ {
		spawn(i, func(o worker.Options) runner { return worker.NewPublisher(o) })
	}
	for i := 0; i < opts.Consumers; i++ {
		spawn(opts.Publishers+i, func(o worker.Options) runner { return worker.NewConsumer(o) })
	}
	wg.Wait()

	// Settle: the final seconds only become drainable once they fall
	// behind the grace window.
	settle := opts.grace() + 2*opts.DrainInterval
	select {
	case <-time.After(settle):
	case <-ctx.Done():
	}
	stopDrain()
	err := <-drainDone

	return opts.Run.Stats(time.Since(start)), err
}

type runner interface {
	Run(ctx context.Context) error
}
