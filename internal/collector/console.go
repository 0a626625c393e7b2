package collector

import (
	"fmt"
	"io"
	"sync"

	"github.com/mqfire/mqfire/internal/stats"
)

// Console writes one progress line per snapshot, rewritten in place
// with a carriage return so a terminal shows a live ticker.
type Console struct {
	mu          sync.Mutex
	w           io.Writer
	firstSecond int64
}

func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = io.Discard
	}
	return &Console{w: w}
}

func (c *Console) Deliver(s stats.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.firstSecond == 0 {
		c.firstSecond = s.Second
	}
	elapsed := s.Second - c.firstSecond

	line := fmt.Sprintf("\r[%4ds] pub %d msg/s %.1f KB/s (%d up) | sub %d msg/s %.1f KB/s (%d up)",
		elapsed,
		s.PublisherMessages, float64(s.PublisherBytes)/1024, s.ActivePublishers,
		s.ConsumerMessages, float64(s.ConsumerBytes)/1024, s.ActiveConsumers,
	)
	if p99 := WorstP99(s.Latencies); p99 > 0 {
		line += fmt.Sprintf(" | p99 %.1fms", float64(p99)/1000)
	}

	_, err := fmt.Fprint(c.w, line)
	return err
}

// WorstP99 returns the highest p99 across the second's per-connection
// summaries, in microseconds. Zero means no samples.
func WorstP99(summaries []stats.Summary) int64 {
	var worst int64
	for _, s := range summaries {
		if s.P99 > worst {
			worst = s.P99
		}
	}
	return worst
}

// WorstP999 is WorstP99 for the p99.9 column.
func WorstP999(summaries []stats.Summary) int64 {
	var worst int64
	for _, s := range summaries {
		if s.P999 > worst {
			worst = s.P999
		}
	}
	return worst
}

// MaxAvg returns the highest per-connection average latency for the
// second, in microseconds.
func MaxAvg(summaries []stats.Summary) float64 {
	var worst float64
	for _, s := range summaries {
		if s.Avg > worst {
			worst = s.Avg
		}
	}
	return worst
}
