package main

import (
	"net"
	"strings"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// startSinkBroker accepts connections, completes the MQTT handshake,
// and swallows publishes. Enough broker for a publisher-only run.
func startSinkBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				for {
					pkt, err := packets.ReadPacket(c)
					if err != nil {
						return
					}
					switch p := pkt.(type) {
					case *packets.ConnectPacket:
						ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
						ack.ReturnCode = packets.Accepted
						if err := ack.Write(c); err != nil {
							return
						}
					case *packets.SubscribePacket:
						ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
						ack.MessageID = p.MessageID
						ack.ReturnCodes = append([]byte(nil), p.Qoss...)
						if err := ack.Write(c); err != nil {
							return
						}
					case *packets.PublishPacket:
						if p.Qos == 1 {
							ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
							ack.MessageID = p.MessageID
							if err := ack.Write(c); err != nil {
								return
							}
						}
					case *packets.PingreqPacket:
						resp := packets.NewControlPacket(packets.Pingresp)
						if err := resp.Write(c); err != nil {
							return
						}
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestRunShowsHelpWithoutArgs(t *testing.T) {
	if err := run(nil); err != nil {
		t.Fatalf("run(nil) error = %v, want nil (help)", err)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	err := run([]string{"--publishers=-1", "--consumers=0"})
	if err == nil {
		t.Fatal("run() with negative publishers should return error")
	}
	if !strings.Contains(err.Error(), "publishers") {
		t.Errorf("error %q does not mention publishers", err)
	}
}

func TestRunRejectsUnknownFlag(t *testing.T) {
	if err := run([]string{"--warp-speed=9"}); err == nil {
		t.Fatal("run() with unknown flag should return error")
	}
}

func TestRunPublisherSmoke(t *testing.T) {
	addr := startSinkBroker(t)

	err := run([]string{
		"--broker=" + addr,
		"--publishers=1",
		"--consumers=0",
		"--topic=smoke/test:1",
		"--rate=50",
		"--duration=300ms",
		"--seed=1",
		"--json-output",
		"--log-level=error",
	})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRunThresholdFailureIsAnError(t *testing.T) {
	addr := startSinkBroker(t)

	err := run([]string{
		"--broker=" + addr,
		"--publishers=1",
		"--consumers=0",
		"--topic=smoke/test:0",
		"--rate=10",
		"--duration=200ms",
		"--seed=1",
		"--json-output",
		"--log-level=error",
		// Impossible bar: no run sends this many messages in 200ms.
		"--threshold=mqtt_messages_sent:count >= 1000000",
	})
	if err == nil {
		t.Fatal("run() with failing threshold should return error")
	}
	if !strings.Contains(err.Error(), "threshold") {
		t.Errorf("error %q does not mention thresholds", err)
	}
}
