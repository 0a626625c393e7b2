package codec

import (
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// ConnectOptions carry the MQTT CONNECT fields the bench uses.
type ConnectOptions struct {
	ClientID     string
	Keepalive    uint16 // seconds
	CleanSession bool
	Username     string
	Password     string
}

// NewConnect builds a CONNECT packet for MQTT 3.1.1.
func NewConnect(opts ConnectOptions) *packets.ConnectPacket {
	cp := packets.NewControlPacket(packets.Connect).(*packets.ConnectPacket)
	cp.ProtocolName = "MQTT"
	cp.ProtocolVersion = 4
	cp.ClientIdentifier = opts.ClientID
	cp.Keepalive = opts.Keepalive
	cp.CleanSession = opts.CleanSession
	if opts.Username != "" {
		cp.UsernameFlag = true
		cp.Username = opts.Username
	}
	if opts.Password != "" {
		cp.PasswordFlag = true
		cp.Password = []byte(opts.Password)
	}
	return cp
}

// NewSubscribe builds a single-topic SUBSCRIBE packet.
func NewSubscribe(id uint16, topic string, qos byte) *packets.SubscribePacket {
	sp := packets.NewControlPacket(packets.Subscribe).(*packets.SubscribePacket)
	sp.MessageID = id
	sp.Topics = []string{topic}
	sp.Qoss = []byte{qos}
	return sp
}

// NewPublish builds a PUBLISH packet. The message id is only meaningful
// for QoS above 0.
func NewPublish(topic string, qos byte, id uint16, payload []byte) *packets.PublishPacket {
	pp := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pp.TopicName = topic
	pp.Qos = qos
	if qos > 0 {
		pp.MessageID = id
	}
	pp.Payload = payload
	return pp
}

// NewPuback builds the QoS 1 acknowledgment for the message id.
func NewPuback(id uint16) *packets.PubackPacket {
	pa := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
	pa.MessageID = id
	return pa
}

// NewPubrec builds the first half of the QoS 2 receiver acknowledgment.
func NewPubrec(id uint16) *packets.PubrecPacket {
	pr := packets.NewControlPacket(packets.Pubrec).(*packets.PubrecPacket)
	pr.MessageID = id
	return pr
}

// NewPubrel builds the QoS 2 release sent by the publishing side after
// a PUBREC.
func NewPubrel(id uint16) *packets.PubrelPacket {
	pr := packets.NewControlPacket(packets.Pubrel).(*packets.PubrelPacket)
	pr.MessageID = id
	return pr
}

// NewPingreq builds a keepalive probe.
func NewPingreq() *packets.PingreqPacket {
	return packets.NewControlPacket(packets.Pingreq).(*packets.PingreqPacket)
}
