// Command testbroker is a minimal MQTT 3.1.1 broker for exercising
// mqfire against a local endpoint. It routes publishes to exact-topic
// subscribers and speaks both raw TCP and WebSocket transports. Not a
// real broker: no retained messages, no wildcards, no persistence.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/gorilla/websocket"
)

func main() {
	port := flag.Int("port", 1883, "TCP listening port")
	wsPort := flag.Int("ws-port", 0, "WebSocket listening port (0 disables)")
	wsPath := flag.String("ws-path", "/mqtt", "WebSocket endpoint path")
	verbose := flag.Bool("verbose", false, "Log every packet")
	flag.Parse()

	b := &broker{
		subs:    make(map[string][]*session),
		verbose: *verbose,
	}

	if *wsPort > 0 {
		go func() {
			log.Fatal(b.serveWebSocket(*wsPort, *wsPath))
		}()
	}
	log.Fatal(b.serveTCP(*port))
}

type broker struct {
	mu      sync.Mutex
	subs    map[string][]*session
	verbose bool
}

// session wraps one client connection. Writes are serialized so routed
// publishes do not interleave with protocol acks.
type session struct {
	mu   sync.Mutex
	conn io.ReadWriteCloser
}

func (s *session) write(pkt packets.ControlPacket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pkt.Write(s.conn)
}

func (b *broker) serveTCP(port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("mqtt broker listening on %s", addr)
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go b.handle(conn)
	}
}

func (b *broker) serveWebSocket(port int, path string) error {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{"mqtt"},
		CheckOrigin:  func(r *http.Request) bool { return true },
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("websocket upgrade failed: %v", err)
			return
		}
		go b.handle(&wsStream{conn: conn})
	})
	addr := fmt.Sprintf(":%d", port)
	log.Printf("mqtt-over-websocket broker listening on %s%s", addr, path)
	return http.ListenAndServe(addr, mux)
}

func (b *broker) handle(conn io.ReadWriteCloser) {
	sess := &session{conn: conn}
	var topics []string
	defer func() {
		conn.Close()
		b.unsubscribe(sess, topics)
	}()

	for {
		pkt, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		if b.verbose {
			log.Printf("recv %s", pkt.String())
		}
		switch p := pkt.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			if err := sess.write(ack); err != nil {
				return
			}
		case *packets.SubscribePacket:
			for _, topic := range p.Topics {
				b.subscribe(sess, topic)
				topics = append(topics, topic)
			}
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = append([]byte(nil), p.Qoss...)
			if err := sess.write(ack); err != nil {
				return
			}
		case *packets.UnsubscribePacket:
			b.unsubscribe(sess, p.Topics)
			ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
			ack.MessageID = p.MessageID
			if err := sess.write(ack); err != nil {
				return
			}
		case *packets.PublishPacket:
			switch p.Qos {
			case 1:
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				if err := sess.write(ack); err != nil {
					return
				}
			case 2:
				rec := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
				rec.MessageID = p.MessageID
				if err := sess.write(rec); err != nil {
					return
				}
			}
			b.route(p)
		case *packets.PubrelPacket:
			comp := packets.NewControlPacket(packets.Pubcomp).(*packets.PubcompPacket)
			comp.MessageID = p.MessageID
			if err := sess.write(comp); err != nil {
				return
			}
		case *packets.PubrecPacket:
			rel := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
			rel.MessageID = p.MessageID
			if err := sess.write(rel); err != nil {
				return
			}
		case *packets.PingreqPacket:
			resp := packets.NewControlPacket(packets.Pingresp)
			if err := sess.write(resp); err != nil {
				return
			}
		case *packets.DisconnectPacket:
			return
		}
	}
}

func (b *broker) subscribe(sess *session, topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[topic] = append(b.subs[topic], sess)
}

func (b *broker) unsubscribe(sess *session, topics []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		kept := b.subs[topic][:0]
		for _, s := range b.subs[topic] {
			if s != sess {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(b.subs, topic)
		} else {
			b.subs[topic] = kept
		}
	}
}

func (b *broker) route(p *packets.PublishPacket) {
	b.mu.Lock()
	targets := append([]*session(nil), b.subs[p.TopicName]...)
	b.mu.Unlock()

	for _, sess := range targets {
		out := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
		out.TopicName = p.TopicName
		out.Qos = p.Qos
		out.MessageID = p.MessageID
		out.Payload = append([]byte(nil), p.Payload...)
		if err := sess.write(out); err != nil && b.verbose {
			log.Printf("route to subscriber failed: %v", err)
		}
	}
}

// wsStream adapts a WebSocket connection to the io interfaces the
// packets codec expects. Reads continue into the next binary frame
// when the current one is exhausted.
type wsStream struct {
	conn *websocket.Conn
	r    io.Reader
}

func (w *wsStream) Read(p []byte) (int, error) {
	for {
		if w.r == nil {
			_, r, err := w.conn.NextReader()
			if err != nil {
				return 0, err
			}
			w.r = r
		}
		n, err := w.r.Read(p)
		if err == io.EOF {
			w.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (w *wsStream) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsStream) Close() error {
	return w.conn.Close()
}
