package codec

import (
	"fmt"
	"net"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Connect performs the blocking CONNECT/CONNACK exchange. It is used
// only at worker startup; anything other than an accepting CONNACK is a
// fatal handshake error.
func Connect(conn net.Conn, opts ConnectOptions) error {
	if err := NewConnect(opts).Write(conn); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}
	pkt, err := packets.ReadPacket(conn)
	if err != nil {
		return fmt.Errorf("read CONNACK: %w", err)
	}
	ack, ok := pkt.(*packets.ConnackPacket)
	if !ok {
		return fmt.Errorf("expected CONNACK, got %s", pkt.String())
	}
	if ack.ReturnCode != packets.Accepted {
		return fmt.Errorf("connection refused: %s", packets.ConnackReturnCodes[ack.ReturnCode])
	}
	return nil
}

// Subscribe performs the blocking SUBSCRIBE/SUBACK exchange for a
// single topic. The broker must grant exactly the requested QoS.
func Subscribe(conn net.Conn, id uint16, topic string, qos byte) error {
	if err := NewSubscribe(id, topic, qos).Write(conn); err != nil {
		return fmt.Errorf("send SUBSCRIBE: %w", err)
	}
	pkt, err := packets.ReadPacket(conn)
	if err != nil {
		return fmt.Errorf("read SUBACK: %w", err)
	}
	ack, ok := pkt.(*packets.SubackPacket)
	if !ok {
		return fmt.Errorf("expected SUBACK, got %s", pkt.String())
	}
	if ack.MessageID != id {
		return fmt.Errorf("SUBACK message id %d, want %d", ack.MessageID, id)
	}
	if len(ack.ReturnCodes) != 1 || ack.ReturnCodes[0] != qos {
		return fmt.Errorf("subscription to %q not granted at QoS %d (return codes %v)", topic, qos, ack.ReturnCodes)
	}
	return nil
}
