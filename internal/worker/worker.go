// Package worker implements the simulated MQTT clients: consumers that
// subscribe and stream inbound frames, and publishers that generate the
// measured traffic. Each worker is an independently scheduled goroutine
// whose only cross-worker interaction is the stats aggregator.
package worker

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mqfire/mqfire/internal/codec"
	"github.com/mqfire/mqfire/internal/collector"
	"github.com/mqfire/mqfire/internal/payload"
	"github.com/mqfire/mqfire/internal/stats"
)

const (
	// subscribeID is the fixed message id for the startup SUBSCRIBE.
	subscribeID uint16 = 1

	// readChunkSize bounds one inbound read; the worker fully
	// processes each chunk before reading again, which is the
	// back-pressure primitive keeping buffering bounded.
	readChunkSize = 4096

	// processingDelay is injected after each chunk when the worker's
	// topic matches the configured delay topic, to exercise
	// latency-under-delay scenarios.
	processingDelay = 500 * time.Millisecond

	defaultKeepalive   = 60 * time.Second
	defaultDialTimeout = 10 * time.Second
)

// HostPort identifies one broker endpoint.
type HostPort struct {
	Host string
	Port int
}

func (h HostPort) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// TopicSpec pairs a topic filter with the QoS to request for it.
type TopicSpec struct {
	Name string
	QoS  byte
}

// ConnectOpts carry the pass-through MQTT connect options.
type ConnectOpts struct {
	ClientID     string
	Keepalive    time.Duration
	CleanSession bool
	Username     string
	Password     string
}

// Config describes one simulated connection.
type Config struct {
	StartAfter  time.Duration // delay before connecting
	Hosts       []HostPort    // one chosen uniformly at random
	ConnectOpts ConnectOpts
	Topics      []TopicSpec   // one chosen uniformly at random
	StopAfter   time.Duration // hard lifetime; 0 disables
	Seed        int64         // worker-owned RNG seed; 0 derives from the clock
	Transport   string        // "tcp" (default) or "ws"
	WSPath      string
	DelayTopic  string // sentinel topic injecting the fixed processing delay
	DialTimeout time.Duration

	// Publisher-only knobs.
	PublishRate int // messages per second; <=0 means unlimited
	PayloadSize int // target encoded payload bytes
}

func (c *Config) normalize() {
	if len(c.Hosts) == 0 {
		c.Hosts = []HostPort{{Host: "localhost", Port: 1883}}
	}
	if len(c.Topics) == 0 {
		c.Topics = []TopicSpec{{Name: "mqfire/bench", QoS: 0}}
	}
	if c.ConnectOpts.Keepalive <= 0 {
		c.ConnectOpts.Keepalive = defaultKeepalive
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.PayloadSize <= 0 {
		c.PayloadSize = 64
	}
}

// Presence tracks live connections per role; workers mark themselves up
// after a successful handshake and down at termination.
type Presence interface {
	WorkerUp(role stats.Role)
	WorkerDown(role stats.Role)
}

// Options wire a worker to its collaborators.
type Options struct {
	Config     Config
	Aggregator *stats.Aggregator // required
	Run        *collector.RunStats
	Presence   Presence
	Logger     *zap.Logger
	Tracer     trace.Tracer

	// TracePublishes wraps each publish in a span when a tracer is
	// configured; sampling is left to the provider.
	TracePublishes bool
}

// base holds the connection state shared by both worker roles.
type base struct {
	opts     Options
	cfg      Config
	role     stats.Role
	logger   *zap.Logger
	rnd      *rand.Rand
	host     HostPort
	topic    TopicSpec
	clientID string
	parser   *codec.Parser

	mu   sync.Mutex
	conn net.Conn // set only once the handshake has completed
}

func newBase(role stats.Role, opts Options) *base {
	opts.Config.normalize()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cfg := opts.Config
	rnd := rand.New(rand.NewSource(cfg.Seed))
	host := cfg.Hosts[rnd.Intn(len(cfg.Hosts))]
	topic := cfg.Topics[rnd.Intn(len(cfg.Topics))]

	clientID := cfg.ConnectOpts.ClientID
	if clientID == "" {
		clientID = "mqfire-" + ulid.MustNew(ulid.Timestamp(time.Now()), rnd).String()
	}

	return &base{
		opts:     opts,
		cfg:      cfg,
		role:     role,
		logger:   opts.Logger.With(zap.String("role", string(role)), zap.String("client_id", clientID)),
		rnd:      rnd,
		host:     host,
		topic:    topic,
		clientID: clientID,
		parser:   codec.NewParser(),
	}
}

func (w *base) connectOptions() codec.ConnectOptions {
	return codec.ConnectOptions{
		ClientID:     w.clientID,
		Keepalive:    uint16(w.cfg.ConnectOpts.Keepalive / time.Second),
		CleanSession: w.cfg.ConnectOpts.CleanSession,
		Username:     w.cfg.ConnectOpts.Username,
		Password:     w.cfg.ConnectOpts.Password,
	}
}

// attach publishes the connection to the keepalive loop and ack path.
func (w *base) attach(conn net.Conn) {
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()
}

// send writes one packet if the worker is connected. With no socket
// attached it is a silent no-op, which is the required keepalive
// behavior before the handshake completes.
func (w *base) send(pkt packets.ControlPacket) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	return pkt.Write(w.conn)
}

// keepaliveLoop fires every keepalive interval from worker creation
// onward, regardless of connection state, until the context ends.
func (w *base) keepaliveLoop(done <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.ConnectOpts.Keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := w.send(codec.NewPingreq()); err != nil {
				w.logger.Debug("keepalive send failed", zap.Error(err))
			}
		}
	}
}

func (w *base) presenceUp() {
	if w.opts.Presence != nil {
		w.opts.Presence.WorkerUp(w.role)
	}
}

func (w *base) presenceDown() {
	if w.opts.Presence != nil {
		w.opts.Presence.WorkerDown(w.role)
	}
}

// readLoop is the steady-state receive path: one bounded read, full
// processing of the chunk, then read again. Any read error, including
// a peer-initiated close and the hard-stop deadline closing the socket,
// is a normal terminal transition.
func (w *base) readLoop(conn net.Conn, acc *stats.Accumulator) {
	buf := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			w.processChunk(buf[:n], time.Now(), acc)
			if w.cfg.DelayTopic != "" && w.topic.Name == w.cfg.DelayTopic {
				time.Sleep(processingDelay)
			}
		}
		if err != nil {
			w.logger.Debug("connection closed", zap.Error(err))
			return
		}
	}
}

// processChunk runs the incremental parser over the accumulated bytes.
// Byte counts are attributed per raw chunk on the needs-more-bytes
// outcome, not per decoded frame. A decode error drops all buffered
// partial state; parsing resumes fresh on the next chunk.
func (w *base) processChunk(chunk []byte, receivedAt time.Time, acc *stats.Accumulator) {
	w.parser.Append(chunk)
	for {
		pkt, ok, err := w.parser.Next()
		if err != nil {
			w.parser.Reset()
			w.opts.Run.RecordDecodeError()
			w.logger.Debug("decode error, dropping buffered bytes", zap.Error(err))
			return
		}
		if !ok {
			w.opts.Aggregator.Increment(acc, 0, int64(len(chunk)))
			w.opts.Run.RecordMessages(w.role, 0, int64(len(chunk)))
			return
		}
		w.handlePacket(pkt, receivedAt, acc)
	}
}

// handlePacket dispatches one decoded frame:
//
//	PUBLISH qos 0  -> +1 message, latency sample
//	PUBLISH qos 1  -> PUBACK, +1 message, latency sample
//	PUBLISH qos 2  -> PUBREC, +0 messages, latency sample
//	PUBCOMP        -> +1 message
//	PUBREC         -> PUBREL (QoS 2 publish flow)
//	anything else  -> ignored
//
// Inbound PUBREL is never answered; QoS 2 credit lands at PUBCOMP.
func (w *base) handlePacket(pkt packets.ControlPacket, receivedAt time.Time, acc *stats.Accumulator) {
	switch p := pkt.(type) {
	case *packets.PublishPacket:
		var credit int64
		switch p.Qos {
		case 1:
			credit = 1
			_ = w.send(codec.NewPuback(p.MessageID))
		case 2:
			_ = w.send(codec.NewPubrec(p.MessageID))
		default:
			credit = 1
		}
		if sec, usec, ok := payload.Timestamp(p.Payload); ok {
			lat := payload.LatencyMicros(sec, usec, receivedAt)
			w.opts.Aggregator.IncrementSample(acc, credit, 0, lat)
			w.opts.Run.RecordLatency(lat)
		} else {
			w.opts.Aggregator.Increment(acc, credit, 0)
		}
		w.opts.Run.RecordMessages(w.role, credit, 0)

	case *packets.PubcompPacket:
		w.opts.Aggregator.Increment(acc, 1, 0)
		w.opts.Run.RecordMessages(w.role, 1, 0)

	case *packets.PubrecPacket:
		_ = w.send(codec.NewPubrel(p.MessageID))
	}
}
