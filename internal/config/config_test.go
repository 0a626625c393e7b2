package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseBroker(t *testing.T) {
	tests := []struct {
		input   string
		want    Broker
		wantErr bool
	}{
		{"localhost:1883", Broker{Host: "localhost", Port: 1883}, false},
		{"broker.example", Broker{Host: "broker.example", Port: 1883}, false},
		{"10.0.0.5:8883", Broker{Host: "10.0.0.5", Port: 8883}, false},
		{"", Broker{}, true},
		{"host:notaport", Broker{}, true},
		{"host:0", Broker{}, true},
		{"host:70000", Broker{}, true},
	}

	for _, tt := range tests {
		got, err := ParseBroker(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBroker(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseBroker(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseTopic(t *testing.T) {
	tests := []struct {
		input   string
		want    Topic
		wantErr bool
	}{
		{"bench/load:1", Topic{Name: "bench/load", QoS: 1}, false},
		{"bench/load", Topic{Name: "bench/load", QoS: 0}, false},
		{"bench/load:2", Topic{Name: "bench/load", QoS: 2}, false},
		// A suffix that is not a single digit stays part of the name.
		{"tenant:42/events", Topic{Name: "tenant:42/events", QoS: 0}, false},
		{"clock:12", Topic{Name: "clock:12", QoS: 0}, false},
		{"topic:x", Topic{Name: "topic:x", QoS: 0}, false},
		{"bench/load:", Topic{Name: "bench/load:", QoS: 0}, false},
		{"bench/load:3", Topic{}, true},
		{":1", Topic{}, true},
		{"", Topic{}, true},
	}

	for _, tt := range tests {
		got, err := ParseTopic(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTopic(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseTopic(%q) = %+v, want %+v", tt.input, got, tt.want)
		}
	}
}

func TestParseBrokers(t *testing.T) {
	cfg := Config{Brokers: []string{"a:1883", "b"}}
	got, err := cfg.ParseBrokers()
	if err != nil {
		t.Fatalf("ParseBrokers() error = %v", err)
	}
	if len(got) != 2 || got[0].Host != "a" || got[1].Port != 1883 {
		t.Errorf("ParseBrokers() = %+v", got)
	}

	cfg = Config{Brokers: []string{"a:1883", ""}}
	if _, err := cfg.ParseBrokers(); err == nil {
		t.Error("ParseBrokers() with empty entry should return error")
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Brokers:    []string{"localhost:1883"},
			Publishers: 1,
			Consumers:  1,
			Topics:     []string{"bench:0"},
			Transport:  TransportTCP,
			LogLevel:   "info",
			Tracing:    TracingConfig{SampleRate: 1.0},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		issue  string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name: "no workers",
			mutate: func(c *Config) {
				c.Publishers = 0
				c.Consumers = 0
			},
			issue: "at least one",
		},
		{
			name:   "negative publishers",
			mutate: func(c *Config) { c.Publishers = -1 },
			issue:  "publishers",
		},
		{
			name:   "negative rate",
			mutate: func(c *Config) { c.Rate = -5 },
			issue:  "rate",
		},
		{
			name:   "negative duration",
			mutate: func(c *Config) { c.Duration = -time.Second },
			issue:  "duration",
		},
		{
			name:   "bad broker",
			mutate: func(c *Config) { c.Brokers = []string{"host:nope"} },
			issue:  "broker",
		},
		{
			name:   "bad topic qos",
			mutate: func(c *Config) { c.Topics = []string{"bench:7"} },
			issue:  "topic",
		},
		{
			name:   "bad transport",
			mutate: func(c *Config) { c.Transport = "quic" },
			issue:  "transport",
		},
		{
			name:   "bad log level",
			mutate: func(c *Config) { c.LogLevel = "loud" },
			issue:  "log-level",
		},
		{
			name: "dashboard and json exclusive",
			mutate: func(c *Config) {
				c.Dashboard = true
				c.JSONOutput = true
			},
			issue: "dashboard",
		},
		{
			name:   "sample rate out of range",
			mutate: func(c *Config) { c.Tracing.SampleRate = 1.5 },
			issue:  "sample",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.issue == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			verr, ok := err.(ValidationError)
			if !ok {
				t.Fatalf("Validate() error type = %T, want ValidationError", err)
			}
			found := false
			for _, issue := range verr.Issues() {
				if strings.Contains(issue, tt.issue) {
					found = true
				}
			}
			if !found {
				t.Errorf("issues %v do not mention %q", verr.Issues(), tt.issue)
			}
		})
	}
}

func TestValidateCollectsMultipleIssues(t *testing.T) {
	cfg := &Config{
		Brokers:    []string{""},
		Publishers: -1,
		Consumers:  1,
		Topics:     []string{"bench:9"},
		Transport:  "carrier-pigeon",
		LogLevel:   "info",
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	verr, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("error type = %T, want ValidationError", err)
	}
	if len(verr.Issues()) < 3 {
		t.Errorf("Issues() = %v, want at least 3", verr.Issues())
	}
}
