package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	// If no arguments provided and no config file, show help/usage
	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	settings := cfgViper.AllSettings()

	cfg := &Config{
		Brokers:      []string{"localhost:1883"},
		Publishers:   1,
		Consumers:    1,
		Topics:       []string{"mqfire/bench:0"},
		PayloadSize:  64,
		Keepalive:    60 * time.Second,
		DialTimeout:  10 * time.Second,
		CleanSession: true,
		Transport:    TransportTCP,
		WSPath:       "/mqtt",
		LogLevel:     "info",
		ConfigFile:   configPath,
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	if err := loadTopicsFile(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "brokers", "broker"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("brokers: %w", err)
		}
		if len(vals) > 0 {
			cfg.Brokers = vals
		}
	}

	if raw, ok := lookupSetting(settings, "publishers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("publishers: %w", err)
		}
		cfg.Publishers = val
	}

	if raw, ok := lookupSetting(settings, "consumers"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("consumers: %w", err)
		}
		cfg.Consumers = val
	}

	if raw, ok := lookupSetting(settings, "topics", "topic"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("topics: %w", err)
		}
		if len(vals) > 0 {
			cfg.Topics = vals
		}
	}

	if raw, ok := lookupSetting(settings, "topicsfile", "topics_file", "topics-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("topicsFile: %w", err)
		}
		cfg.TopicsFile = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = dur
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "payloadsize", "payload_size", "payload-size"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("payloadSize: %w", err)
		}
		cfg.PayloadSize = val
	}

	if raw, ok := lookupSetting(settings, "keepalive"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("keepalive: %w", err)
		}
		cfg.Keepalive = dur
	}

	if raw, ok := lookupSetting(settings, "clientid", "client_id", "client-id"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("clientId: %w", err)
		}
		cfg.ClientID = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "username"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("username: %w", err)
		}
		cfg.Username = val
	}

	if raw, ok := lookupSetting(settings, "password"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("password: %w", err)
		}
		cfg.Password = val
	}

	if raw, ok := lookupSetting(settings, "cleansession", "clean_session", "clean-session"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("cleanSession: %w", err)
		}
		cfg.CleanSession = val
	}

	if raw, ok := lookupSetting(settings, "transport"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("transport: %w", err)
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "wspath", "ws_path", "ws-path"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("wsPath: %w", err)
		}
		cfg.WSPath = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "startinterval", "start_interval", "start-interval"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("startInterval: %w", err)
		}
		cfg.StartInterval = dur
	}

	if raw, ok := lookupSetting(settings, "dialtimeout", "dial_timeout", "dial-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("dialTimeout: %w", err)
		}
		cfg.DialTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "delaytopic", "delay_topic", "delay-topic"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("delayTopic: %w", err)
		}
		cfg.DelayTopic = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("jsonOutput: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "csvoutput", "csv_output", "csv-output", "csv"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("csvOutput: %w", err)
		}
		cfg.CSVOutput = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "metricsaddr", "metrics_addr", "metrics-addr"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("metricsAddr: %w", err)
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("logLevel: %w", err)
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "thresholds", "threshold"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		if tracing.Protocol == "" {
			tracing.Protocol = cfg.Tracing.Protocol
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "tracepublishes", "trace_publishes", "trace-publishes"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("tracePublishes: %w", err)
		}
		cfg.TracePublishes = val
	}

	return nil
}

func parseTracing(value interface{}) (TracingConfig, error) {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}
	cfg := TracingConfig{SampleRate: 1.0}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}
	if raw, ok := lookupSetting(entry, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		cfg.SampleRate = val
	}
	if raw, ok := lookupSetting(entry, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		cfg.ServiceName = strings.TrimSpace(val)
	}
	return cfg, nil
}

// loadTopicsFile loads the topic list from the YAML topics file. Each
// entry uses the same topic:qos form as the --topic flag.
func loadTopicsFile(cfg *Config) error {
	if cfg.TopicsFile == "" {
		return nil
	}
	data, err := os.ReadFile(cfg.TopicsFile)
	if err != nil {
		return fmt.Errorf("topics file: %w", err)
	}
	var topics []string
	if err := yaml.Unmarshal(data, &topics); err != nil {
		return fmt.Errorf("topics file %s: %w", cfg.TopicsFile, err)
	}
	loaded := make([]string, 0, len(topics))
	for _, t := range topics {
		if strings.TrimSpace(t) == "" {
			continue
		}
		loaded = append(loaded, t)
	}
	if len(loaded) == 0 {
		return fmt.Errorf("topics file %s: no topics listed", cfg.TopicsFile)
	}
	// The file stands in for --topic; it replaces rather than extends.
	cfg.Topics = loaded
	return nil
}
