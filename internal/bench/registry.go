package bench

import (
	"sync/atomic"

	"github.com/mqfire/mqfire/internal/stats"
)

// Registry tracks how many workers of each role currently hold a
// completed handshake. Workers report their own transitions; the drain
// loop reads the counts when it assembles a snapshot.
type Registry struct {
	publishers atomic.Int64
	consumers  atomic.Int64
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) WorkerUp(role stats.Role) {
	r.counter(role).Add(1)
}

func (r *Registry) WorkerDown(role stats.Role) {
	r.counter(role).Add(-1)
}

// ActiveWorkers reports the live connection count for one role.
func (r *Registry) ActiveWorkers(role stats.Role) int {
	return int(r.counter(role).Load())
}

func (r *Registry) counter(role stats.Role) *atomic.Int64 {
	if role == stats.RolePublisher {
		return &r.publishers
	}
	return &r.consumers
}
