package collector

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqfire/mqfire/internal/stats"
)

// Prometheus exposes per-second snapshots as gauges and running
// counters on a private registry.
type Prometheus struct {
	registry *prometheus.Registry

	messagesPerSecond *prometheus.GaugeVec
	bytesPerSecond    *prometheus.GaugeVec
	activeWorkers     *prometheus.GaugeVec
	messagesTotal     *prometheus.CounterVec
	latencyAvg        prometheus.Gauge
	latencyP99        prometheus.Gauge
	latencyP999       prometheus.Gauge
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		messagesPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mqfire_messages_per_second",
			Help: "Messages counted against the finalized second, per role.",
		}, []string{"role"}),
		bytesPerSecond: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mqfire_bytes_per_second",
			Help: "Bytes counted against the finalized second, per role.",
		}, []string{"role"}),
		activeWorkers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mqfire_active_workers",
			Help: "Live connections at drain time, per role.",
		}, []string{"role"}),
		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqfire_messages_total",
			Help: "Total messages across all finalized seconds, per role.",
		}, []string{"role"}),
		latencyAvg: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqfire_latency_avg_microseconds",
			Help: "Worst per-connection average latency for the finalized second.",
		}),
		latencyP99: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqfire_latency_p99_microseconds",
			Help: "Worst per-connection p99 latency for the finalized second.",
		}),
		latencyP999: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqfire_latency_p999_microseconds",
			Help: "Worst per-connection p99.9 latency for the finalized second.",
		}),
	}

	p.registry.MustRegister(
		p.messagesPerSecond, p.bytesPerSecond, p.activeWorkers,
		p.messagesTotal, p.latencyAvg, p.latencyP99, p.latencyP999,
	)
	return p
}

func (p *Prometheus) Deliver(s stats.Snapshot) error {
	pub := string(stats.RolePublisher)
	sub := string(stats.RoleConsumer)

	p.messagesPerSecond.WithLabelValues(pub).Set(float64(s.PublisherMessages))
	p.messagesPerSecond.WithLabelValues(sub).Set(float64(s.ConsumerMessages))
	p.bytesPerSecond.WithLabelValues(pub).Set(float64(s.PublisherBytes))
	p.bytesPerSecond.WithLabelValues(sub).Set(float64(s.ConsumerBytes))
	p.activeWorkers.WithLabelValues(pub).Set(float64(s.ActivePublishers))
	p.activeWorkers.WithLabelValues(sub).Set(float64(s.ActiveConsumers))
	p.messagesTotal.WithLabelValues(pub).Add(float64(s.PublisherMessages))
	p.messagesTotal.WithLabelValues(sub).Add(float64(s.ConsumerMessages))

	p.latencyAvg.Set(MaxAvg(s.Latencies))
	p.latencyP99.Set(float64(WorstP99(s.Latencies)))
	p.latencyP999.Set(float64(WorstP999(s.Latencies)))
	return nil
}

// Registry exposes the private registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the standard exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
