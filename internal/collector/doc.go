// Package collector holds the sinks that receive finalized per-second
// snapshots from the stats drain loop, plus the run-level totals and
// the final report and threshold evaluation built from them.
package collector
