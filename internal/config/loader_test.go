package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int64
	}{
		{int64(1) << 40, int64(1) << 40},
		{"9007199254740993", 9007199254740993},
		{42, 42},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt64(tt.input)
		if err != nil {
			t.Errorf("asInt64(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt64(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{}
	settings := map[string]interface{}{
		"brokers":    []interface{}{"broker1:1883", "broker2"},
		"publishers": 10,
		"consumers":  4,
		"topics":     []interface{}{"bench/a:1", "bench/b:2"},
		"rate":       200,
		"keepalive":  "30s",
		"transport":  "WS",
		"tracing": map[string]interface{}{
			"endpoint":    "otel:4317",
			"sample_rate": 0.25,
			"insecure":    true,
		},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "broker2" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if cfg.Publishers != 10 {
		t.Errorf("Publishers = %d, want 10", cfg.Publishers)
	}
	if cfg.Consumers != 4 {
		t.Errorf("Consumers = %d, want 4", cfg.Consumers)
	}
	if len(cfg.Topics) != 2 || cfg.Topics[0] != "bench/a:1" {
		t.Errorf("Topics = %v", cfg.Topics)
	}
	if cfg.Rate != 200 {
		t.Errorf("Rate = %d, want 200", cfg.Rate)
	}
	if cfg.Keepalive != 30*time.Second {
		t.Errorf("Keepalive = %v, want 30s", cfg.Keepalive)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %q, want ws", cfg.Transport)
	}
	if cfg.Tracing.Endpoint != "otel:4317" {
		t.Errorf("Tracing.Endpoint = %q", cfg.Tracing.Endpoint)
	}
	if cfg.Tracing.SampleRate != 0.25 {
		t.Errorf("Tracing.SampleRate = %g, want 0.25", cfg.Tracing.SampleRate)
	}
	if !cfg.Tracing.Insecure {
		t.Error("Tracing.Insecure = false, want true")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		Publishers: 1,
		Rate:       10,
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--publishers=5",
		"--rate=100",
		"--broker=b1:1883",
		"--broker=b2:1884",
		"--topic=bench/x:1",
		"--transport=ws",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Publishers != 5 {
		t.Errorf("Publishers = %d, want 5", cfg.Publishers)
	}
	if cfg.Rate != 100 {
		t.Errorf("Rate = %d, want 100", cfg.Rate)
	}
	if len(cfg.Brokers) != 2 || cfg.Brokers[1] != "b2:1884" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if len(cfg.Topics) != 1 || cfg.Topics[0] != "bench/x:1" {
		t.Errorf("Topics = %v", cfg.Topics)
	}
	if cfg.Transport != TransportWebSocket {
		t.Errorf("Transport = %q, want ws", cfg.Transport)
	}
}

func TestLoader_Load(t *testing.T) {
	loader := NewLoader()
	args := []string{
		"--broker=broker.example:1883",
		"--publishers=2",
		"--consumers=0",
	}

	cfg, err := loader.Load(args)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "broker.example:1883" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if cfg.Publishers != 2 {
		t.Errorf("Publishers = %d, want 2", cfg.Publishers)
	}
	if cfg.Consumers != 0 {
		t.Errorf("Consumers = %d, want 0", cfg.Consumers)
	}
	// Untouched defaults survive the overrides.
	if cfg.Keepalive != 60*time.Second {
		t.Errorf("Keepalive default = %v, want 60s", cfg.Keepalive)
	}
	if cfg.Transport != TransportTCP {
		t.Errorf("Transport default = %q, want tcp", cfg.Transport)
	}
}

func TestLoader_LoadNoArgsShowsHelp(t *testing.T) {
	loader := NewLoader()
	if _, err := loader.Load(nil); err != ErrHelpRequested {
		t.Fatalf("Load(nil) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoader_LoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bench.yaml")
	body := []byte("brokers:\n  - b1:1883\npublishers: 3\nconsumers: 2\ntopics:\n  - load/a:1\nrate: 50\nduration: 10s\ncsv_output: out.csv\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load([]string{"--config=" + path, "--rate=75"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Publishers != 3 || cfg.Consumers != 2 {
		t.Errorf("fleet = (%d, %d), want (3, 2)", cfg.Publishers, cfg.Consumers)
	}
	if len(cfg.Topics) != 1 || cfg.Topics[0] != "load/a:1" {
		t.Errorf("Topics = %v", cfg.Topics)
	}
	// Flags override the file.
	if cfg.Rate != 75 {
		t.Errorf("Rate = %d, want flag override 75", cfg.Rate)
	}
	if cfg.Duration != 10*time.Second {
		t.Errorf("Duration = %v, want 10s", cfg.Duration)
	}
	if cfg.CSVOutput != "out.csv" {
		t.Errorf("CSVOutput = %q, want out.csv", cfg.CSVOutput)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoader_LoadTopicsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.yaml")
	if err := os.WriteFile(path, []byte("- sensors/temp:1\n- sensors/humidity\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader().Load([]string{"--topics-file=" + path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Topics) != 2 {
		t.Fatalf("Topics = %v, want the two file entries", cfg.Topics)
	}
	if cfg.Topics[0] != "sensors/temp:1" || cfg.Topics[1] != "sensors/humidity" {
		t.Errorf("Topics = %v", cfg.Topics)
	}
}

func TestLoader_LoadTopicsFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topics.yaml")
	if err := os.WriteFile(path, []byte("[]\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewLoader().Load([]string{"--topics-file=" + path}); err == nil {
		t.Fatal("Load() with empty topics file should return error")
	}
}

func TestParseTracingFromString(t *testing.T) {
	got, err := parseTracing(map[string]interface{}{
		"endpoint":     "collector:4318",
		"protocol":     "HTTP",
		"service_name": "edge-bench",
	})
	if err != nil {
		t.Fatalf("parseTracing() error = %v", err)
	}
	if got.Endpoint != "collector:4318" {
		t.Errorf("Endpoint = %q", got.Endpoint)
	}
	if got.Protocol != "http" {
		t.Errorf("Protocol = %q, want http", got.Protocol)
	}
	if got.ServiceName != "edge-bench" {
		t.Errorf("ServiceName = %q", got.ServiceName)
	}
	if got.SampleRate != 1.0 {
		t.Errorf("SampleRate default = %g, want 1.0", got.SampleRate)
	}
}
