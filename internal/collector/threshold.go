package collector

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "mqtt_msg_latency", "mqtt_handshake_failed"
	Aggregate string  // e.g., "p99", "avg", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // the threshold value to compare against
	Raw       string  // original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9.]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var validMetrics = []string{
	"mqtt_msg_latency",
	"mqtt_messages_sent",
	"mqtt_messages_received",
	"mqtt_handshake_failed",
	"mqtt_decode_errors",
}

var validAggregates = []string{"p50", "p90", "p99", "p999", "avg", "min", "max", "rate", "count"}

var validOperators = []string{"<", "<=", ">", ">=", "=="}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "mqtt_msg_latency:p99 < 200"        (latency percentile in ms)
//   - "mqtt_msg_latency:avg < 50"         (average latency in ms)
//   - "mqtt_messages_received:rate > 1000" (messages per second)
//   - "mqtt_handshake_failed:count == 0"   (failure count)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'mqtt_msg_latency:p99 < 200')", s)
	}

	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}
	if !contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !contains(validAggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", aggregate, strings.Join(validAggregates, ", "))
	}
	if !contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(validOperators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

// Evaluate checks all thresholds against the final run stats.
func Evaluate(thresholds []Threshold, stats Stats) []Result {
	if len(thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(thresholds))
	for _, t := range thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{Threshold: t, Pass: false, Message: fmt.Sprintf("error: %v", err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

func extractMetricValue(t Threshold, stats Stats) (float64, error) {
	switch t.Metric {
	case "mqtt_msg_latency":
		switch t.Aggregate {
		case "min":
			return stats.MinLatencyMs, nil
		case "max":
			return stats.MaxLatencyMs, nil
		case "avg":
			return stats.MeanLatencyMs, nil
		case "p50":
			return stats.P50LatencyMs, nil
		case "p90":
			return stats.P90LatencyMs, nil
		case "p99":
			return stats.P99LatencyMs, nil
		case "p999":
			return stats.P999LatencyMs, nil
		}
	case "mqtt_messages_sent":
		switch t.Aggregate {
		case "count":
			return float64(stats.MessagesSent), nil
		case "rate":
			return stats.SendRate, nil
		}
	case "mqtt_messages_received":
		switch t.Aggregate {
		case "count":
			return float64(stats.MessagesReceived), nil
		case "rate":
			return stats.ReceiveRate, nil
		}
	case "mqtt_handshake_failed":
		if t.Aggregate == "count" {
			return float64(stats.HandshakeFailures), nil
		}
	case "mqtt_decode_errors":
		if t.Aggregate == "count" {
			return float64(stats.DecodeErrors), nil
		}
	}
	return 0, fmt.Errorf("aggregate %q not defined for metric %q", t.Aggregate, t.Metric)
}

func compareValues(actual float64, operator string, value float64) bool {
	const epsilon = 1e-9
	switch operator {
	case "<":
		return actual < value
	case "<=":
		return actual <= value
	case ">":
		return actual > value
	case ">=":
		return actual >= value
	case "==":
		return math.Abs(actual-value) < epsilon
	default:
		return false
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
