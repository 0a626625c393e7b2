package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mqfire/mqfire/internal/bench"
	"github.com/mqfire/mqfire/internal/collector"
	"github.com/mqfire/mqfire/internal/config"
	"github.com/mqfire/mqfire/internal/dashboard"
	"github.com/mqfire/mqfire/internal/logging"
	"github.com/mqfire/mqfire/internal/stats"
	"github.com/mqfire/mqfire/internal/tracing"
	"github.com/mqfire/mqfire/internal/worker"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		Insecure:    cfg.Tracing.Insecure,
		SampleRate:  cfg.Tracing.SampleRate,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stop()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("trace provider shutdown", zap.Error(err))
		}
	}()

	brokers, err := cfg.ParseBrokers()
	if err != nil {
		return err
	}
	topics, err := cfg.ParseTopics()
	if err != nil {
		return err
	}

	hosts := make([]worker.HostPort, len(brokers))
	for i, b := range brokers {
		hosts[i] = worker.HostPort{Host: b.Host, Port: b.Port}
	}
	specs := make([]worker.TopicSpec, len(topics))
	for i, t := range topics {
		specs[i] = worker.TopicSpec{Name: t.Name, QoS: t.QoS}
	}

	totals := collector.NewRunStats()

	var sinks []stats.Collector
	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(totals, dashboard.TestConfig{
			Brokers:     strings.Join(cfg.Brokers, ", "),
			Publishers:  cfg.Publishers,
			Consumers:   cfg.Consumers,
			Topics:      strings.Join(cfg.Topics, ", "),
			Rate:        cfg.Rate,
			PayloadSize: cfg.PayloadSize,
			Duration:    cfg.Duration,
			Transport:   string(cfg.Transport),
			ConfigFile:  cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
		sinks = append(sinks, dash)
	} else if !cfg.JSONOutput {
		sinks = append(sinks, collector.NewConsole(os.Stdout))
	}

	if cfg.CSVOutput != "" {
		csv, err := collector.NewCSV(cfg.CSVOutput)
		if err != nil {
			return err
		}
		defer func() {
			if err := csv.Close(); err != nil {
				logger.Warn("csv close", zap.Error(err))
			}
		}()
		sinks = append(sinks, csv)
	}

	if cfg.MetricsAddr != "" {
		prom := collector.NewPrometheus()
		sinks = append(sinks, prom)

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving prometheus metrics", zap.String("addr", cfg.MetricsAddr))
	}

	opts := bench.Options{
		Publishers: cfg.Publishers,
		Consumers:  cfg.Consumers,
		Worker: worker.Config{
			Hosts: hosts,
			ConnectOpts: worker.ConnectOpts{
				ClientID:     cfg.ClientID,
				Keepalive:    cfg.Keepalive,
				CleanSession: cfg.CleanSession,
				Username:     cfg.Username,
				Password:     cfg.Password,
			},
			Topics:      specs,
			Seed:        cfg.Seed,
			Transport:   string(cfg.Transport),
			WSPath:      cfg.WSPath,
			DelayTopic:  cfg.DelayTopic,
			DialTimeout: cfg.DialTimeout,
			PublishRate: cfg.Rate,
			PayloadSize: cfg.PayloadSize,
		},
		Duration:       cfg.Duration,
		StartInterval:  cfg.StartInterval,
		Collector:      collector.NewTee(logger, sinks...),
		Run:            totals,
		Logger:         logger,
		Tracer:         provider.Tracer(),
		TracePublishes: cfg.TracePublishes,
	}

	result, benchErr := bench.Run(ctx, opts)

	// The terminal must be restored before the report goes to stdout.
	if dash != nil {
		dash.Stop()
	}

	if cfg.JSONOutput {
		if err := collector.PrintJSONReport(os.Stdout, result); err != nil {
			return err
		}
	} else {
		collector.PrintReport(os.Stdout, result)
	}

	if benchErr != nil {
		return benchErr
	}

	if len(cfg.Thresholds) > 0 {
		thresholds, err := collector.ParseMultiple(cfg.Thresholds)
		if err != nil {
			return err
		}
		results := collector.Evaluate(thresholds, result)
		failed := 0
		fmt.Fprintln(os.Stdout, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(os.Stdout, "  %s\n", r.Message)
			if !r.Pass {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
		}
	}

	return nil
}
