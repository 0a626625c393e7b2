package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mqfire/mqfire/internal/codec"
	"github.com/mqfire/mqfire/internal/stats"
	"github.com/mqfire/mqfire/internal/tracing"
	"github.com/mqfire/mqfire/internal/transport"
)

// Consumer is a subscribing connection: it performs the synchronous
// CONNECT and SUBSCRIBE handshake, then streams inbound frames,
// acknowledging them per QoS level and extracting embedded latency
// samples.
type Consumer struct {
	*base
	acc *stats.Accumulator
}

// NewConsumer builds a consumer worker. Host, topic, and client id are
// picked from the config using the worker's own seeded generator, so
// the selection is reproducible.
func NewConsumer(opts Options) *Consumer {
	b := newBase(stats.RoleConsumer, opts)
	return &Consumer{
		base: b,
		acc:  opts.Aggregator.NewAccumulator(stats.RoleConsumer),
	}
}

// Run drives the worker lifecycle: keepalive and stop timers are armed
// immediately, the startup delay elapses, the handshake runs once (a
// failure is fatal, no retry), then the receive loop owns the socket
// until the peer closes it or the hard stop deadline hits.
func (w *Consumer) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if w.cfg.StopAfter > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, w.cfg.StopAfter)
		defer stop()
	}

	go w.keepaliveLoop(ctx.Done())

	if w.cfg.StartAfter > 0 {
		select {
		case <-time.After(w.cfg.StartAfter):
		case <-ctx.Done():
			return nil
		}
	}

	conn, err := w.handshake(ctx)
	if err != nil {
		w.opts.Run.RecordHandshakeFailure()
		return fmt.Errorf("handshake with %s: %w", w.host.Addr(), err)
	}

	// Cancellation and the stop deadline end the worker by closing the
	// socket out from under the read loop. No MQTT disconnect is sent.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w.attach(conn)
	w.presenceUp()
	defer w.presenceDown()
	defer w.opts.Aggregator.Flush(w.acc)

	w.logger.Info("consumer streaming",
		zap.String("broker", w.host.Addr()),
		zap.String("topic", w.topic.Name),
		zap.Uint8("qos", w.topic.QoS))

	w.readLoop(conn, w.acc)
	return nil
}

func (w *Consumer) handshake(ctx context.Context) (conn net.Conn, err error) {
	if w.opts.Tracer != nil {
		var span trace.Span
		ctx, span = tracing.StartConnectSpan(ctx, w.opts.Tracer, w.host.Addr(), w.clientID, w.topic.Name, w.topic.QoS)
		defer func() { tracing.EndSpan(span, err) }()
	}

	conn, err = transport.Dial(ctx, w.cfg.Transport, w.host.Addr(), w.cfg.WSPath, w.cfg.DialTimeout)
	if err != nil {
		return nil, err
	}
	if err = codec.Connect(conn, w.connectOptions()); err != nil {
		conn.Close()
		return nil, err
	}
	if err = codec.Subscribe(conn, subscribeID, w.topic.Name, w.topic.QoS); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
