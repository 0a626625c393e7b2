package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

type Transport string

const (
	TransportTCP       Transport = "tcp"
	TransportWebSocket Transport = "ws"
)

// Broker is one parsed broker endpoint.
type Broker struct {
	Host string
	Port int
}

// Topic is one parsed topic:qos pair.
type Topic struct {
	Name string
	QoS  byte
}

type Config struct {
	Brokers       []string      `mapstructure:"brokers"` // host:port, port defaults to 1883
	Publishers    int           `mapstructure:"publishers"`
	Consumers     int           `mapstructure:"consumers"`
	Topics        []string      `mapstructure:"topics"` // topic:qos, qos defaults to 0
	TopicsFile    string        `mapstructure:"topics_file"`
	Duration      time.Duration `mapstructure:"duration"`
	Rate          int           `mapstructure:"rate"` // publishes/s per publisher, 0 unlimited
	PayloadSize   int           `mapstructure:"payload_size"`
	Keepalive     time.Duration `mapstructure:"keepalive"`
	ClientID      string        `mapstructure:"client_id"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	CleanSession  bool          `mapstructure:"clean_session"`
	Transport     Transport     `mapstructure:"transport"`
	WSPath        string        `mapstructure:"ws_path"`
	StartInterval time.Duration `mapstructure:"start_interval"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	Seed          int64         `mapstructure:"seed"`
	DelayTopic    string        `mapstructure:"delay_topic"`

	JSONOutput  bool     `mapstructure:"json_output"`
	Dashboard   bool     `mapstructure:"dashboard"`
	CSVOutput   string   `mapstructure:"csv_output"`
	MetricsAddr string   `mapstructure:"metrics_addr"`
	LogLevel    string   `mapstructure:"log_level"`
	Thresholds  []string `mapstructure:"thresholds"`

	Tracing        TracingConfig `mapstructure:"tracing"`
	TracePublishes bool          `mapstructure:"trace_publishes"`

	ConfigFile string `mapstructure:"-"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"`
	Insecure    bool    `mapstructure:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	ServiceName string  `mapstructure:"service_name"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// ParseBroker parses "host:port". A bare host gets the default MQTT port.
func ParseBroker(s string) (Broker, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Broker{}, fmt.Errorf("broker cannot be empty")
	}
	if !strings.Contains(s, ":") {
		return Broker{Host: s, Port: 1883}, nil
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Broker{}, fmt.Errorf("broker %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return Broker{}, fmt.Errorf("broker %q: invalid port %q", s, portStr)
	}
	return Broker{Host: host, Port: port}, nil
}

// ParseTopic parses "name:qos". A bare name gets QoS 0. The qos suffix
// only counts when it is a single digit, so topic names containing
// colons still work.
func ParseTopic(s string) (Topic, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Topic{}, fmt.Errorf("topic cannot be empty")
	}
	idx := strings.LastIndex(s, ":")
	if idx < 0 || idx == len(s)-1 || len(s)-idx > 2 {
		return Topic{Name: s}, nil
	}
	qos, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return Topic{Name: s}, nil
	}
	if qos < 0 || qos > 2 {
		return Topic{}, fmt.Errorf("topic %q: qos must be 0, 1, or 2", s)
	}
	name := s[:idx]
	if name == "" {
		return Topic{}, fmt.Errorf("topic %q: name cannot be empty", s)
	}
	return Topic{Name: name, QoS: byte(qos)}, nil
}

// ParseBrokers parses all configured broker endpoints.
func (c Config) ParseBrokers() ([]Broker, error) {
	brokers := make([]Broker, 0, len(c.Brokers))
	for _, s := range c.Brokers {
		b, err := ParseBroker(s)
		if err != nil {
			return nil, err
		}
		brokers = append(brokers, b)
	}
	return brokers, nil
}

// ParseTopics parses all configured topic:qos pairs.
func (c Config) ParseTopics() ([]Topic, error) {
	topics := make([]Topic, 0, len(c.Topics))
	for _, s := range c.Topics {
		t, err := ParseTopic(s)
		if err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, nil
}

func (c Config) Validate() error {
	var issues []string
	var warnings []string

	if c.Publishers < 0 {
		issues = append(issues, "publishers must be >= 0")
	}
	if c.Consumers < 0 {
		issues = append(issues, "consumers must be >= 0")
	}
	if c.Publishers == 0 && c.Consumers == 0 {
		issues = append(issues, "at least one publisher or consumer is required")
	}

	if c.Publishers+c.Consumers > 5000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High connection count configured (%d). Ensure you have authorization to test the target broker.", c.Publishers+c.Consumers))
	}
	if c.Rate > 10000 {
		warnings = append(warnings, fmt.Sprintf("WARNING: High publish rate configured (%d msg/s per publisher). Ensure you have authorization to test the target broker.", c.Rate))
	}
	for _, w := range warnings {
		fmt.Fprintln(os.Stderr, w)
	}

	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.PayloadSize < 0 {
		issues = append(issues, "payload-size must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Keepalive < 0 {
		issues = append(issues, "keepalive must be >= 0")
	}
	if c.StartInterval < 0 {
		issues = append(issues, "start-interval must be >= 0")
	}
	if c.DialTimeout < 0 {
		issues = append(issues, "dial-timeout must be >= 0")
	}

	if _, err := c.ParseBrokers(); err != nil {
		issues = append(issues, err.Error())
	}
	if _, err := c.ParseTopics(); err != nil {
		issues = append(issues, err.Error())
	}

	switch c.Transport {
	case "", TransportTCP, TransportWebSocket:
	default:
		issues = append(issues, fmt.Sprintf("transport: must be 'tcp' or 'ws', got %q", c.Transport))
	}

	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log-level: must be debug, info, warn, or error, got %q", c.LogLevel))
	}

	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}
