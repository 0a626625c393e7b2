package collector

import (
	"go.uber.org/zap"

	"github.com/mqfire/mqfire/internal/stats"
)

// Tee fans one snapshot out to several collectors. Individual delivery
// failures are logged, not propagated, so one broken sink never stalls
// the drain loop or the other sinks.
type Tee struct {
	sinks  []stats.Collector
	logger *zap.Logger
}

func NewTee(logger *zap.Logger, sinks ...stats.Collector) *Tee {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tee{sinks: sinks, logger: logger}
}

func (t *Tee) Deliver(s stats.Snapshot) error {
	for _, sink := range t.sinks {
		if err := sink.Deliver(s); err != nil {
			t.logger.Warn("collector delivery failed",
				zap.Int64("second", s.Second), zap.Error(err))
		}
	}
	return nil
}
