package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mqfire/mqfire/internal/codec"
	"github.com/mqfire/mqfire/internal/payload"
	"github.com/mqfire/mqfire/internal/stats"
	"github.com/mqfire/mqfire/internal/tracing"
	"github.com/mqfire/mqfire/internal/transport"
)

// Publisher is a generating connection: same lifecycle as a Consumer
// minus the SUBSCRIBE, publishing timestamped payloads at a paced rate.
//
// The pacing loop and the receive loop each own a separate
// publisher-role accumulator, so neither goroutine ever touches the
// other's window while both flush into the same per-second buckets.
type Publisher struct {
	*base
	pubAcc *stats.Accumulator // owned by the pacing loop
	ackAcc *stats.Accumulator // owned by the receive loop
}

// NewPublisher builds a publisher worker.
func NewPublisher(opts Options) *Publisher {
	b := newBase(stats.RolePublisher, opts)
	return &Publisher{
		base:   b,
		pubAcc: opts.Aggregator.NewAccumulator(stats.RolePublisher),
		ackAcc: opts.Aggregator.NewAccumulator(stats.RolePublisher),
	}
}

// Run drives the publisher lifecycle. Publish failures terminate the
// worker the same way a peer close does.
func (w *Publisher) Run(ctx context.Context) error {
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

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w.attach(conn)
	w.presenceUp()
	defer w.presenceDown()
	defer w.opts.Aggregator.Flush(w.pubAcc)
	defer w.opts.Aggregator.Flush(w.ackAcc)

	w.logger.Info("publisher streaming",
		zap.String("broker", w.host.Addr()),
		zap.String("topic", w.topic.Name),
		zap.Uint8("qos", w.topic.QoS),
		zap.Int("rate", w.cfg.PublishRate))

	// The receive loop consumes QoS 1 PUBACKs and runs the QoS 2
	// PUBREC/PUBREL/PUBCOMP flow against its own accumulator.
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		w.readLoop(conn, w.ackAcc)
	}()

	w.publishLoop(ctx)

	cancel()
	<-recvDone
	return nil
}

func (w *Publisher) publishLoop(ctx context.Context) {
	limiter := newLimiter(w.cfg.PublishRate)

	var seq uint64
	var msgID uint16
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		body := payload.Marshal(time.Now(), seq, w.cfg.PayloadSize)
		var id uint16
		if w.topic.QoS > 0 {
			msgID++
			if msgID == 0 {
				msgID = 1
			}
			id = msgID
		}

		if err := w.publishOne(ctx, id, body); err != nil {
			// Peer gone; a publisher has nothing to clean up.
			w.logger.Debug("publish failed, stopping", zap.Error(err))
			return
		}
		w.opts.Aggregator.Increment(w.pubAcc, 1, int64(len(body)))
		w.opts.Run.RecordMessages(stats.RolePublisher, 1, int64(len(body)))
		seq++
	}
}

func (w *Publisher) publishOne(ctx context.Context, id uint16, body []byte) (err error) {
	if w.opts.TracePublishes && w.opts.Tracer != nil {
		var span trace.Span
		_, span = tracing.StartPublishSpan(ctx, w.opts.Tracer, w.host.Addr(), w.topic.Name, w.topic.QoS)
		defer func() { tracing.EndSpan(span, err) }()
	}
	return w.send(codec.NewPublish(w.topic.Name, w.topic.QoS, id, body))
}

func (w *Publisher) handshake(ctx context.Context) (conn net.Conn, err error) {
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
	return conn, nil
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	// Burst equal to the rate smooths pacing without starving it.
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}
