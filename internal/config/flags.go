package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mqfire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.StringSliceP("broker", "b", nil, "Broker endpoint in host:port form (repeatable)")
	flags.StringSlice("topic", nil, "Topic in topic:qos form (repeatable)")
	flags.String("topics-file", "", "Path to YAML file listing topics")

	// Load control flags
	flags.IntP("publishers", "p", 1, "Number of publishing connections")
	flags.IntP("consumers", "s", 1, "Number of subscribing connections")
	flags.IntP("rate", "r", 0, "Publishes per second per publisher (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run the test (e.g. 30s, 1m)")
	flags.Int("payload-size", 64, "Encoded payload size in bytes")
	flags.Duration("start-interval", 0, "Connect stagger between successive workers")
	flags.Int64("seed", 0, "Base RNG seed for host/topic selection (0 derives from the clock)")
	flags.String("delay-topic", "", "Topic whose consumers simulate slow processing")

	// Connection flags
	flags.Duration("keepalive", 60*time.Second, "MQTT keepalive interval")
	flags.String("client-id", "", "Client id prefix (a unique id is generated when empty)")
	flags.String("username", "", "MQTT username")
	flags.String("password", "", "MQTT password")
	flags.Bool("clean-session", true, "Request a clean session on connect")
	flags.String("transport", "tcp", "Transport: 'tcp' or 'ws'")
	flags.String("ws-path", "/mqtt", "WebSocket endpoint path")
	flags.Duration("dial-timeout", 10*time.Second, "Per-connection dial timeout")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.String("csv", "", "Write per-second snapshots to the given CSV file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.String("log-level", "info", "Log level: debug, info, warn, or error")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'mqtt_msg_latency:p99<250')")

	// Tracing flags
	flags.String("otlp-endpoint", "", "OTLP endpoint for trace export")
	flags.String("otlp-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("otlp-insecure", false, "Disable TLS for OTLP export")
	flags.Float64("trace-sample-rate", 1.0, "Trace sampling ratio between 0.0 and 1.0")
	flags.String("trace-service-name", "", "Service name reported on spans")
	flags.Bool("trace-publishes", false, "Emit one span per publish (high volume)")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config,
// overriding values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("broker") {
		val, err := fs.GetStringSlice("broker")
		if err != nil {
			return err
		}
		cfg.Brokers = val
	}
	if fs.Changed("topic") {
		val, err := fs.GetStringSlice("topic")
		if err != nil {
			return err
		}
		cfg.Topics = val
	}
	if fs.Changed("topics-file") {
		val, err := fs.GetString("topics-file")
		if err != nil {
			return err
		}
		cfg.TopicsFile = strings.TrimSpace(val)
	}
	if fs.Changed("publishers") {
		val, err := fs.GetInt("publishers")
		if err != nil {
			return err
		}
		cfg.Publishers = val
	}
	if fs.Changed("consumers") {
		val, err := fs.GetInt("consumers")
		if err != nil {
			return err
		}
		cfg.Consumers = val
	}
	if fs.Changed("rate") {
		val, err := fs.GetInt("rate")
		if err != nil {
			return err
		}
		cfg.Rate = val
	}
	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("payload-size") {
		val, err := fs.GetInt("payload-size")
		if err != nil {
			return err
		}
		cfg.PayloadSize = val
	}
	if fs.Changed("start-interval") {
		val, err := fs.GetDuration("start-interval")
		if err != nil {
			return err
		}
		cfg.StartInterval = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("delay-topic") {
		val, err := fs.GetString("delay-topic")
		if err != nil {
			return err
		}
		cfg.DelayTopic = strings.TrimSpace(val)
	}
	if fs.Changed("keepalive") {
		val, err := fs.GetDuration("keepalive")
		if err != nil {
			return err
		}
		cfg.Keepalive = val
	}
	if fs.Changed("client-id") {
		val, err := fs.GetString("client-id")
		if err != nil {
			return err
		}
		cfg.ClientID = strings.TrimSpace(val)
	}
	if fs.Changed("username") {
		val, err := fs.GetString("username")
		if err != nil {
			return err
		}
		cfg.Username = val
	}
	if fs.Changed("password") {
		val, err := fs.GetString("password")
		if err != nil {
			return err
		}
		cfg.Password = val
	}
	if fs.Changed("clean-session") {
		val, err := fs.GetBool("clean-session")
		if err != nil {
			return err
		}
		cfg.CleanSession = val
	}
	if fs.Changed("transport") {
		val, err := fs.GetString("transport")
		if err != nil {
			return err
		}
		cfg.Transport = Transport(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("ws-path") {
		val, err := fs.GetString("ws-path")
		if err != nil {
			return err
		}
		cfg.WSPath = strings.TrimSpace(val)
	}
	if fs.Changed("dial-timeout") {
		val, err := fs.GetDuration("dial-timeout")
		if err != nil {
			return err
		}
		cfg.DialTimeout = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("csv") {
		val, err := fs.GetString("csv")
		if err != nil {
			return err
		}
		cfg.CSVOutput = strings.TrimSpace(val)
	}
	if fs.Changed("metrics-addr") {
		val, err := fs.GetString("metrics-addr")
		if err != nil {
			return err
		}
		cfg.MetricsAddr = strings.TrimSpace(val)
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("otlp-endpoint") {
		val, err := fs.GetString("otlp-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("otlp-protocol") {
		val, err := fs.GetString("otlp-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("otlp-insecure") {
		val, err := fs.GetBool("otlp-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("trace-sample-rate") {
		val, err := fs.GetFloat64("trace-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("trace-service-name") {
		val, err := fs.GetString("trace-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = strings.TrimSpace(val)
	}
	if fs.Changed("trace-publishes") {
		val, err := fs.GetBool("trace-publishes")
		if err != nil {
			return err
		}
		cfg.TracePublishes = val
	}

	return nil
}
