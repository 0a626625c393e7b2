// Package stats is the per-second measurement engine of the bench.
//
// Each connection owns a private Accumulator and feeds it through the
// Aggregator's increment calls; windows close on second boundaries and
// flush into globally shared, lock-free bucket stores. A single drain
// loop finalizes buckets after a grace period and hands one Snapshot
// per elapsed second to the configured Collector.
package stats
