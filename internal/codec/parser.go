// Package codec frames and unframes MQTT 3.1.1 control packets for the
// bench, building on the paho packets implementation for the packet
// structs themselves.
package codec

import (
	"bytes"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// maxRemainingLengthBytes is the MQTT cap on the variable-length
// remaining-length field in the fixed header.
const maxRemainingLengthBytes = 4

// Parser is an incremental MQTT frame scanner. Bytes arrive in
// arbitrary chunks via Append; Next yields complete decoded packets as
// soon as the buffer holds them.
//
// A decode error leaves the buffer as-is; the caller is expected to
// Reset and resume on fresh bytes. Corrupted input is dropped wholesale
// rather than resynchronized byte-by-byte.
type Parser struct {
	buf []byte
}

// NewParser returns an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Append adds a received chunk to the parse buffer.
func (p *Parser) Append(chunk []byte) {
	p.buf = append(p.buf, chunk...)
}

// Next attempts to decode one packet from the buffered bytes. It
// returns (pkt, true, nil) when a complete frame was decoded,
// (nil, false, nil) when more bytes are needed, and (nil, false, err)
// on a malformed fixed header or packet body.
func (p *Parser) Next() (packets.ControlPacket, bool, error) {
	total, err := p.frameLength()
	if err != nil {
		return nil, false, err
	}
	if total == 0 || len(p.buf) < total {
		return nil, false, nil
	}

	pkt, err := packets.ReadPacket(bytes.NewReader(p.buf[:total]))
	if err != nil {
		return nil, false, fmt.Errorf("decode packet: %w", err)
	}
	p.buf = append(p.buf[:0], p.buf[total:]...)
	return pkt, true, nil
}

// Reset discards all buffered partial-frame state.
func (p *Parser) Reset() {
	p.buf = p.buf[:0]
}

// frameLength inspects the fixed header and returns the total size of
// the first frame in the buffer, or 0 when the header is not yet
// complete.
func (p *Parser) frameLength() (int, error) {
	if len(p.buf) < 2 {
		return 0, nil
	}

	kind := p.buf[0] >> 4
	if kind < packets.Connect || kind > packets.Disconnect {
		return 0, fmt.Errorf("invalid packet type %d", kind)
	}

	remaining := 0
	shift := uint(0)
	for i := 1; ; i++ {
		if i > maxRemainingLengthBytes {
			return 0, fmt.Errorf("remaining length exceeds %d bytes", maxRemainingLengthBytes)
		}
		if i >= len(p.buf) {
			return 0, nil
		}
		b := p.buf[i]
		remaining |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return 1 + i + remaining, nil
		}
		shift += 7
	}
}
