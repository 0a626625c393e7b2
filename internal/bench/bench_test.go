package bench

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/mqfire/mqfire/internal/collector"
	"github.com/mqfire/mqfire/internal/stats"
	"github.com/mqfire/mqfire/internal/worker"
)

func TestRegistryTracksRoles(t *testing.T) {
	r := NewRegistry()

	r.WorkerUp(stats.RolePublisher)
	r.WorkerUp(stats.RolePublisher)
	r.WorkerUp(stats.RoleConsumer)

	if got := r.ActiveWorkers(stats.RolePublisher); got != 2 {
		t.Errorf("ActiveWorkers(publisher) = %d, want 2", got)
	}
	if got := r.ActiveWorkers(stats.RoleConsumer); got != 1 {
		t.Errorf("ActiveWorkers(consumer) = %d, want 1", got)
	}

	r.WorkerDown(stats.RolePublisher)
	r.WorkerDown(stats.RoleConsumer)

	if got := r.ActiveWorkers(stats.RolePublisher); got != 1 {
		t.Errorf("after down, ActiveWorkers(publisher) = %d, want 1", got)
	}
	if got := r.ActiveWorkers(stats.RoleConsumer); got != 0 {
		t.Errorf("after down, ActiveWorkers(consumer) = %d, want 0", got)
	}
}

func TestRegistryConcurrentTransitions(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.WorkerUp(stats.RolePublisher)
			r.WorkerDown(stats.RolePublisher)
		}()
	}
	wg.Wait()
	if got := r.ActiveWorkers(stats.RolePublisher); got != 0 {
		t.Errorf("ActiveWorkers(publisher) = %d, want 0 after balanced transitions", got)
	}
}

type snapshotSink struct {
	mu    sync.Mutex
	snaps []stats.Snapshot
}

func (s *snapshotSink) Deliver(snap stats.Snapshot) error {
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
	return nil
}

func (s *snapshotSink) all() []stats.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]stats.Snapshot(nil), s.snaps...)
}

// loopBroker is a minimal in-test broker: it accepts handshakes,
// answers pings and QoS 1 acks, and routes publishes to exact-topic
// subscribers.
type loopBroker struct {
	mu   sync.Mutex
	subs map[string][]*brokerSession
}

type brokerSession struct {
	mu   sync.Mutex
	conn net.Conn
}

func (s *brokerSession) write(pkt packets.ControlPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pkt.Write(s.conn)
}

func startBroker(t *testing.T) worker.HostPort {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	b := &loopBroker{subs: make(map[string][]*brokerSession)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go b.serve(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return worker.HostPort{Host: addr.IP.String(), Port: addr.Port}
}

func (b *loopBroker) serve(conn net.Conn) {
	sess := &brokerSession{conn: conn}
	defer func() {
		conn.Close()
		b.unsubscribe(sess)
	}()
	for {
		pkt, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := pkt.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			if err := sess.write(ack); err != nil {
				return
			}
		case *packets.SubscribePacket:
			b.mu.Lock()
			b.subs[p.Topics[0]] = append(b.subs[p.Topics[0]], sess)
			b.mu.Unlock()
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = append([]byte(nil), p.Qoss...)
			if err := sess.write(ack); err != nil {
				return
			}
		case *packets.PublishPacket:
			if p.Qos == 1 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				if err := sess.write(ack); err != nil {
					return
				}
			}
			b.route(p)
		case *packets.PingreqPacket:
			if err := sess.write(packets.NewControlPacket(packets.Pingresp)); err != nil {
				return
			}
		}
	}
}

func (b *loopBroker) route(p *packets.PublishPacket) {
	b.mu.Lock()
	targets := append([]*brokerSession(nil), b.subs[p.TopicName]...)
	b.mu.Unlock()
	for _, sess := range targets {
		out := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		out.TopicName = p.TopicName
		out.Qos = p.Qos
		out.MessageID = p.MessageID
		out.Payload = p.Payload
		_ = sess.write(out)
	}
}

func (b *loopBroker) unsubscribe(sess *brokerSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, sessions := range b.subs {
		kept := sessions[:0]
		for _, s := range sessions {
			if s != sess {
				kept = append(kept, s)
			}
		}
		b.subs[topic] = kept
	}
}

func TestRunLoopback(t *testing.T) {
	host := startBroker(t)
	sink := &snapshotSink{}
	run := collector.NewRunStats()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	result, err := Run(ctx, Options{
		Publishers: 2,
		Consumers:  1,
		Worker: worker.Config{
			Hosts:       []worker.HostPort{host},
			Topics:      []worker.TopicSpec{{Name: "bench/loop", QoS: 1}},
			ConnectOpts: worker.ConnectOpts{Keepalive: 30 * time.Second},
			PublishRate: 50,
			PayloadSize: 64,
			Seed:        7,
		},
		Duration:      600 * time.Millisecond,
		DrainInterval: 50 * time.Millisecond,
		Grace:         -1, // drain right behind the clock so the test settles fast
		Collector:     sink,
		Run:           run,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.MessagesSent == 0 {
		t.Error("MessagesSent = 0, want publishes on the wire")
	}
	if result.MessagesReceived == 0 {
		t.Error("MessagesReceived = 0, want PUBACK credits")
	}
	if result.HandshakeFailures != 0 {
		t.Errorf("HandshakeFailures = %d, want 0", result.HandshakeFailures)
	}
	if result.Duration <= 0 {
		t.Error("Duration not populated")
	}

	var sawPublishers, sawMessages bool
	for _, snap := range sink.all() {
		if snap.ActivePublishers > 0 {
			sawPublishers = true
		}
		if snap.PublisherMessages > 0 {
			sawMessages = true
		}
	}
	if !sawPublishers {
		t.Error("no snapshot observed live publishers")
	}
	if !sawMessages {
		t.Error("no snapshot carried publisher message counts")
	}
}

func TestRunDerivesPerWorkerSeeds(t *testing.T) {
	var opts Options
	opts.Worker.Seed = 100
	opts.normalize()
	if opts.Worker.Seed != 100 {
		t.Errorf("normalize overwrote an explicit seed: %d", opts.Worker.Seed)
	}

	var zero Options
	zero.normalize()
	if zero.Worker.Seed == 0 {
		t.Error("normalize left the seed unset")
	}
	if zero.DrainInterval != time.Second {
		t.Errorf("DrainInterval default = %s, want 1s", zero.DrainInterval)
	}
}

func TestRunDurationCapsWorkers(t *testing.T) {
	var opts Options
	opts.Duration = 2 * time.Second
	opts.normalize()
	if opts.Worker.StopAfter != 2*time.Second {
		t.Errorf("StopAfter = %s, want the run duration", opts.Worker.StopAfter)
	}

	var explicit Options
	explicit.Duration = 2 * time.Second
	explicit.Worker.StopAfter = time.Second
	explicit.normalize()
	if explicit.Worker.StopAfter != time.Second {
		t.Errorf("StopAfter = %s, want the explicit per-worker cap", explicit.Worker.StopAfter)
	}
}
