package stats

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrDrainActive is returned by Run when a drain loop already exists
// for the aggregator. Exactly one drain loop may run system-wide: it is
// the sole reader-and-deleter of finalized buckets, which is what
// guarantees each bucket reaches the collector at most once.
var ErrDrainActive = errors.New("stats: drain loop already running")

// Snapshot is the consolidated result for one finalized second.
type Snapshot struct {
	Second            int64
	PublisherMessages int64
	PublisherBytes    int64
	ActivePublishers  int
	ConsumerMessages  int64
	ConsumerBytes     int64
	ActiveConsumers   int
	Latencies         []Summary
}

// Collector receives one Snapshot per elapsed second from the drain loop.
type Collector interface {
	Deliver(Snapshot) error
}

// ActiveSource reports current live connection counts per role.
type ActiveSource interface {
	ActiveWorkers(role Role) int
}

// Options configure an Aggregator.
type Options struct {
	Collector Collector
	Actives   ActiveSource  // optional; nil reads as zero actives
	Interval  time.Duration // drain period, default 1s
	Grace     time.Duration // finalization delay, default 5s
	Now       func() time.Time
	Logger    *zap.Logger
}

func (o *Options) normalize() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Grace < 0 {
		o.Grace = 0
	} else if o.Grace == 0 {
		o.Grace = 5 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Aggregator owns the global per-second bucket and latency stores and
// the drain loop that finalizes them.
type Aggregator struct {
	opts      Options
	buckets   *bucketStore
	latencies *latencyStore
	draining  chan struct{} // capacity 1; holding the token = drain loop running
}

// New builds an Aggregator. A nil Collector panics at drain time, so
// callers must always supply one.
func New(opts Options) *Aggregator {
	opts.normalize()
	return &Aggregator{
		opts:      opts,
		buckets:   newBucketStore(),
		latencies: newLatencyStore(),
		draining:  make(chan struct{}, 1),
	}
}

// NewAccumulator returns a fresh accumulator for the role, window unset.
func (g *Aggregator) NewAccumulator(role Role) *Accumulator {
	return &Accumulator{role: role}
}

// Increment adds deltas to the accumulator's open window, flushing the
// previous window first if the wall-clock second has moved on. It is
// called once per processed frame, or once per short-read outcome with
// a zero message delta. Distinct accumulators may increment
// concurrently; a single accumulator must not.
func (g *Aggregator) Increment(acc *Accumulator, messages, byteCount int64) {
	g.record(acc, messages, byteCount, 0, false)
}

// IncrementSample is Increment plus one latency sample in microseconds,
// appended to the open window's pending list.
func (g *Aggregator) IncrementSample(acc *Accumulator, messages, byteCount, latencyMicros int64) {
	g.record(acc, messages, byteCount, latencyMicros, true)
}

func (g *Aggregator) record(acc *Accumulator, messages, byteCount, sample int64, haveSample bool) {
	now := g.opts.Now().Unix()
	if acc.second != now {
		if acc.second != 0 {
			g.flush(acc)
		}
		acc.second = now
		acc.messages = 0
		acc.bytes = 0
		acc.samples = acc.samples[:0]
	}
	acc.messages += messages
	acc.bytes += byteCount
	if haveSample {
		acc.samples = append(acc.samples, sample)
	}
}

// Flush closes the accumulator's open window, if any, pushing its
// totals into the shared stores. Workers call it once at termination so
// a final partial second is not stranded in private state.
func (g *Aggregator) Flush(acc *Accumulator) {
	if acc.second == 0 {
		return
	}
	g.flush(acc)
	acc.second = 0
	acc.messages = 0
	acc.bytes = 0
	acc.samples = acc.samples[:0]
}

func (g *Aggregator) flush(acc *Accumulator) {
	g.latencies.Append(acc.second, Summarize(acc.samples))
	g.buckets.Add(acc.role, acc.second, acc.messages, acc.bytes)
}

// Run executes the drain loop until the context is cancelled. It errors
// immediately if another drain loop is already running.
func (g *Aggregator) Run(ctx context.Context) error {
	select {
	case g.draining <- struct{}{}:
	default:
		return ErrDrainActive
	}
	defer func() { <-g.draining }()

	ticker := time.NewTicker(g.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			g.drainOnce()
		}
	}
}

// drainOnce finalizes the bucket that is now past the grace window and
// delivers its snapshot. Missing entries read as zero counts and an
// empty latency list.
func (g *Aggregator) drainOnce() {
	target := g.opts.Now().Add(-g.opts.Grace).Unix()

	snap := Snapshot{Second: target}
	snap.PublisherMessages, snap.PublisherBytes = g.buckets.Take(RolePublisher, target)
	snap.ConsumerMessages, snap.ConsumerBytes = g.buckets.Take(RoleConsumer, target)
	snap.Latencies = g.latencies.Take(target)
	if g.opts.Actives != nil {
		snap.ActivePublishers = g.opts.Actives.ActiveWorkers(RolePublisher)
		snap.ActiveConsumers = g.opts.Actives.ActiveWorkers(RoleConsumer)
	}

	if err := g.opts.Collector.Deliver(snap); err != nil {
		g.opts.Logger.Warn("deliver snapshot", zap.Int64("second", target), zap.Error(err))
	}
}
