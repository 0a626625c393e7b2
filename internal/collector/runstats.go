package collector

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/mqfire/mqfire/internal/stats"
)

// RunStats records run-level totals across all workers in a
// thread-safe manner. Workers feed it alongside the per-second
// aggregator; it backs the final report and threshold evaluation.
type RunStats struct {
	mu                sync.Mutex
	hist              *hdrhistogram.Histogram
	messagesSent      int64
	messagesReceived  int64
	bytesSent         int64
	bytesReceived     int64
	handshakeFailures int64
	decodeErrors      int64
	minLatency        int64 // microseconds
	maxLatency        int64
	sumLatency        int64
	samples           int64
}

// Stats represents the aggregated run totals.
type Stats struct {
	MessagesSent      int64 `json:"messages_sent"`
	MessagesReceived  int64 `json:"messages_received"`
	BytesSent         int64 `json:"bytes_sent"`
	BytesReceived     int64 `json:"bytes_received"`
	HandshakeFailures int64 `json:"handshake_failures"`
	DecodeErrors      int64 `json:"decode_errors"`
	LatencySamples    int64 `json:"latency_samples"`

	Duration    time.Duration `json:"-"`
	MinLatency  time.Duration `json:"-"`
	MaxLatency  time.Duration `json:"-"`
	MeanLatency time.Duration `json:"-"`
	P50Latency  time.Duration `json:"-"`
	P90Latency  time.Duration `json:"-"`
	P99Latency  time.Duration `json:"-"`
	P999Latency time.Duration `json:"-"`

	SendRate    float64 `json:"send_rate"`
	ReceiveRate float64 `json:"receive_rate"`

	// JSON-friendly millisecond fields.
	DurationMs    float64 `json:"duration_ms"`
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	P999LatencyMs float64 `json:"p999_latency_ms"`
}

func NewRunStats() *RunStats {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	return &RunStats{
		hist: hdrhistogram.New(1, 60_000_000, 3),
	}
}

// RecordMessages counts messages and bytes against the role's totals.
func (r *RunStats) RecordMessages(role stats.Role, messages, byteCount int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if role == stats.RolePublisher {
		r.messagesSent += messages
		r.bytesSent += byteCount
	} else {
		r.messagesReceived += messages
		r.bytesReceived += byteCount
	}
}

// RecordLatency adds one raw latency sample in microseconds.
func (r *RunStats) RecordLatency(latencyMicros int64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	v := latencyMicros
	if v < r.hist.LowestTrackableValue() {
		v = r.hist.LowestTrackableValue()
	}
	if v > r.hist.HighestTrackableValue() {
		v = r.hist.HighestTrackableValue()
	}
	_ = r.hist.RecordValue(v)

	r.sumLatency += latencyMicros
	r.samples++
	if r.minLatency == 0 || latencyMicros < r.minLatency {
		r.minLatency = latencyMicros
	}
	if latencyMicros > r.maxLatency {
		r.maxLatency = latencyMicros
	}
}

// RecordHandshakeFailure counts one fatal worker handshake.
func (r *RunStats) RecordHandshakeFailure() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.handshakeFailures++
	r.mu.Unlock()
}

// RecordDecodeError counts one discarded inbound buffer.
func (r *RunStats) RecordDecodeError() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.decodeErrors++
	r.mu.Unlock()
}

// Stats computes and returns the aggregated run totals.
func (r *RunStats) Stats(elapsed time.Duration) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{
		MessagesSent:      r.messagesSent,
		MessagesReceived:  r.messagesReceived,
		BytesSent:         r.bytesSent,
		BytesReceived:     r.bytesReceived,
		HandshakeFailures: r.handshakeFailures,
		DecodeErrors:      r.decodeErrors,
		LatencySamples:    r.samples,
		Duration:          elapsed,
		MinLatency:        time.Duration(r.minLatency) * time.Microsecond,
		MaxLatency:        time.Duration(r.maxLatency) * time.Microsecond,
	}

	if r.samples > 0 {
		s.MeanLatency = time.Duration(r.sumLatency/r.samples) * time.Microsecond
	}
	if r.hist.TotalCount() > 0 {
		s.P50Latency = time.Duration(r.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(r.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P99Latency = time.Duration(r.hist.ValueAtQuantile(99)) * time.Microsecond
		s.P999Latency = time.Duration(r.hist.ValueAtQuantile(99.9)) * time.Microsecond
	}

	if elapsed > 0 {
		s.SendRate = float64(r.messagesSent) / elapsed.Seconds()
		s.ReceiveRate = float64(r.messagesReceived) / elapsed.Seconds()
	}

	s.DurationMs = float64(elapsed) / float64(time.Millisecond)
	s.MinLatencyMs = float64(s.MinLatency) / float64(time.Millisecond)
	s.MaxLatencyMs = float64(s.MaxLatency) / float64(time.Millisecond)
	s.MeanLatencyMs = float64(s.MeanLatency) / float64(time.Millisecond)
	s.P50LatencyMs = float64(s.P50Latency) / float64(time.Millisecond)
	s.P90LatencyMs = float64(s.P90Latency) / float64(time.Millisecond)
	s.P99LatencyMs = float64(s.P99Latency) / float64(time.Millisecond)
	s.P999LatencyMs = float64(s.P999Latency) / float64(time.Millisecond)

	return s
}
