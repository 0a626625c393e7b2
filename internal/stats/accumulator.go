package stats

// Role identifies which side of the traffic a connection plays.
type Role string

const (
	RolePublisher Role = "publisher"
	RoleConsumer  Role = "consumer"
)

// Accumulator batches one connection's counters for the currently open
// second. It is exclusively owned by a single goroutine; the only
// shared-memory access happens inside the Aggregator when a window
// closes and flushes.
type Accumulator struct {
	role     Role
	second   int64 // unix second of the open window; 0 = window unset
	messages int64
	bytes    int64
	samples  []int64 // pending latency samples, microseconds
}

// Role returns the traffic role the accumulator counts for.
func (a *Accumulator) Role() Role { return a.role }
