package collector

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mqfire/mqfire/internal/stats"
)

func TestPrometheusDeliver(t *testing.T) {
	p := NewPrometheus()
	snap := stats.Snapshot{
		Second:            1700000000,
		PublisherMessages: 50,
		PublisherBytes:    5000,
		ActivePublishers:  2,
		ConsumerMessages:  45,
		ConsumerBytes:     4500,
		ActiveConsumers:   3,
		Latencies:         []stats.Summary{{Avg: 100, P99: 800, P999: 1200}},
	}
	if err := p.Deliver(snap); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}
	if err := p.Deliver(snap); err != nil {
		t.Fatalf("Deliver() error = %v", err)
	}

	families, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	byName := map[string]bool{}
	for _, f := range families {
		byName[f.GetName()] = true
	}
	for _, name := range []string{
		"mqfire_messages_per_second",
		"mqfire_bytes_per_second",
		"mqfire_active_workers",
		"mqfire_messages_total",
		"mqfire_latency_p99_microseconds",
	} {
		if !byName[name] {
			t.Errorf("registry missing metric %s", name)
		}
	}

	// The counter accumulates across snapshots; gauges hold the latest.
	srv := httptest.NewServer(p.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	if !strings.Contains(text, `mqfire_messages_total{role="publisher"} 100`) {
		t.Errorf("publisher counter not accumulated:\n%s", text)
	}
	if !strings.Contains(text, `mqfire_messages_per_second{role="consumer"} 45`) {
		t.Errorf("consumer gauge not set:\n%s", text)
	}
	if !strings.Contains(text, "mqfire_latency_p99_microseconds 800") {
		t.Errorf("latency gauge not set:\n%s", text)
	}
}
