// Package payload defines the timestamped JSON body the bench
// publishes and the latency math applied when it comes back.
package payload

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const microsPerSecond = 1_000_000

type body struct {
	Sec  int64  `json:"sec"`
	Usec int64  `json:"usec"`
	Seq  uint64 `json:"seq"`
	Data string `json:"data"`
}

// Marshal encodes a payload stamped with the send time. The data field
// is padded so the encoded payload reaches size bytes when the envelope
// alone is smaller than that.
func Marshal(sentAt time.Time, seq uint64, size int) []byte {
	b := body{
		Sec:  sentAt.Unix(),
		Usec: int64(sentAt.Nanosecond()) / 1000,
		Seq:  seq,
	}
	base, _ := json.Marshal(b)
	if pad := size - len(base); pad > 0 {
		b.Data = strings.Repeat("x", pad)
	}
	out, _ := json.Marshal(b)
	return out
}

// Timestamp extracts the sender-captured (sec, usec) pair from a
// payload. ok is false when either field is missing, which is how
// foreign payloads and non-timestamped traffic are skipped.
func Timestamp(payload []byte) (sec, usec int64, ok bool) {
	s := gjson.GetBytes(payload, "sec")
	u := gjson.GetBytes(payload, "usec")
	if !s.Exists() || !u.Exists() {
		return 0, 0, false
	}
	return s.Int(), u.Int(), true
}

// LatencyMicros returns the absolute difference between the sender
// timestamp and the receipt time, in microseconds. The sub-second part
// borrows from the seconds explicitly so a rollover across the second
// boundary does not distort the sample.
func LatencyMicros(sec, usec int64, receivedAt time.Time) int64 {
	dSec := receivedAt.Unix() - sec
	dUsec := int64(receivedAt.Nanosecond())/1000 - usec
	if dUsec < 0 {
		dSec--
		dUsec += microsPerSecond
	}
	total := dSec*microsPerSecond + dUsec
	if total < 0 {
		return -total
	}
	return total
}
