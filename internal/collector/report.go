package collector

import (
	"encoding/json"
	"fmt"
	"io"
)

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, stats Stats) {
	fmt.Fprintln(w, "\n--- MQTT Bench Results ---")
	fmt.Fprintf(w, "Messages Sent:     %d\n", stats.MessagesSent)
	fmt.Fprintf(w, "Messages Received: %d\n", stats.MessagesReceived)
	fmt.Fprintf(w, "Bytes Sent:        %d\n", stats.BytesSent)
	fmt.Fprintf(w, "Bytes Received:    %d\n", stats.BytesReceived)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Send Rate:         %.2f msg/s\n", stats.SendRate)
	fmt.Fprintf(w, "Receive Rate:      %.2f msg/s\n", stats.ReceiveRate)
	if stats.HandshakeFailures > 0 {
		fmt.Fprintf(w, "Handshake Failures: %d\n", stats.HandshakeFailures)
	}
	if stats.DecodeErrors > 0 {
		fmt.Fprintf(w, "Decode Errors:      %d\n", stats.DecodeErrors)
	}

	if stats.LatencySamples > 0 {
		fmt.Fprintf(w, "\nLatency (%d samples):\n", stats.LatencySamples)
		fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
		fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
		fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
		fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
		fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
		fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)
		fmt.Fprintf(w, "  P99.9:           %s\n", stats.P999Latency)
	}
}

// PrintJSONReport outputs the stats as indented JSON.
func PrintJSONReport(w io.Writer, stats Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stats); err != nil {
		return fmt.Errorf("encode JSON report: %w", err)
	}
	return nil
}
