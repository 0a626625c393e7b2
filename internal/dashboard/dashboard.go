package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/mqfire/mqfire/internal/collector"
	"github.com/mqfire/mqfire/internal/stats"
)

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	Brokers     string        // Comma-joined broker endpoints
	Publishers  int           // Publishing connections
	Consumers   int           // Subscribing connections
	Topics      string        // Comma-joined topic:qos pairs
	Rate        int           // Publishes per second per publisher (0 = unlimited)
	PayloadSize int           // Encoded payload bytes
	Duration    time.Duration // Test duration (0 = unlimited)
	Transport   string        // tcp or ws
	ConfigFile  string        // Path to config file if used
}

// Dashboard renders a live terminal UI for a running load test. It is a
// snapshot collector: each drained second feeds the sparklines, while
// the run totals panel reads from the shared RunStats.
type Dashboard struct {
	run          *collector.RunStats
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid            *ui.Grid
	throughputSpark *widgets.SparklineGroup
	latencyPara     *widgets.Paragraph
	activesGauge    *widgets.Gauge
	summaryPara     *widgets.Paragraph
	totalsPara      *widgets.Paragraph
	pubHistory      []float64
	subHistory      []float64
	lastSnap        stats.Snapshot
	startTime       time.Time
	testDuration    time.Duration
	testConfig      TestConfig
}

// New creates a new Dashboard.
func New(run *collector.RunStats, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		run:          run,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		pubHistory:   make([]float64, 0, 100),
		subHistory:   make([]float64, 0, 100),
		startTime:    time.Now(),
		testConfig:   cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	pubSpark := widgets.NewSparkline()
	pubSpark.Title = "Published msg/s"
	pubSpark.LineColor = ui.ColorGreen
	pubSpark.Data = []float64{0}

	subSpark := widgets.NewSparkline()
	subSpark.Title = "Received msg/s"
	subSpark.LineColor = ui.ColorMagenta
	subSpark.Data = []float64{0}

	d.throughputSpark = widgets.NewSparklineGroup(pubSpark, subSpark)
	d.throughputSpark.Title = "Throughput"
	d.throughputSpark.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "End-to-End Latency"
	d.latencyPara.Text = "Awaiting samples"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.activesGauge = widgets.NewGauge()
	d.activesGauge.Title = "Connected Workers"
	d.activesGauge.Percent = 0
	d.activesGauge.BarColor = ui.ColorBlue
	d.activesGauge.BorderStyle.Fg = ui.ColorCyan
	d.activesGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.totalsPara = widgets.NewParagraph()
	d.totalsPara.Title = "Run Totals"
	d.totalsPara.Text = "Waiting for data..."
	d.totalsPara.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.activesGauge),
		),
		ui.NewRow(0.36,
			ui.NewCol(1.0, d.throughputSpark),
		),
		ui.NewRow(0.32,
			ui.NewCol(0.5, d.latencyPara),
			ui.NewCol(0.5, d.totalsPara),
		),
	)
}

// Deliver feeds one drained per-second snapshot into the view. It never
// returns an error; a slow terminal must not stall the drain loop.
func (d *Dashboard) Deliver(snap stats.Snapshot) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastSnap = snap

	d.pubHistory = append(d.pubHistory, float64(snap.PublisherMessages))
	if len(d.pubHistory) > 100 {
		d.pubHistory = d.pubHistory[1:]
	}
	d.subHistory = append(d.subHistory, float64(snap.ConsumerMessages))
	if len(d.subHistory) > 100 {
		d.subHistory = d.subHistory[1:]
	}
	d.throughputSpark.Sparklines[0].Data = d.pubHistory
	d.throughputSpark.Sparklines[1].Data = d.subHistory
	d.throughputSpark.Title = fmt.Sprintf(
		"Throughput | pub %d msg/s %s | sub %d msg/s %s",
		snap.PublisherMessages,
		formatBytesPerSec(snap.PublisherBytes),
		snap.ConsumerMessages,
		formatBytesPerSec(snap.ConsumerBytes),
	)

	active := snap.ActivePublishers + snap.ActiveConsumers
	target := d.testConfig.Publishers + d.testConfig.Consumers
	percent := 0
	if target > 0 {
		percent = active * 100 / target
	}
	if percent > 100 {
		percent = 100
	}
	d.activesGauge.Percent = percent
	d.activesGauge.Label = fmt.Sprintf("%d pub / %d sub of %d", snap.ActivePublishers, snap.ActiveConsumers, target)

	return nil
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.loop()
}

// Stop stops the dashboard and cleans up.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	d.testDuration = time.Since(d.startTime)
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// GetFinalStats returns the final statistics after the dashboard has stopped.
func (d *Dashboard) GetFinalStats() collector.Stats {
	return d.run.Stats(d.testDuration)
}

// loop is the main dashboard update loop.
func (d *Dashboard) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			// Check if context is done to avoid blocking
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes the text panels from the run totals and the most
// recent snapshot.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	totals := d.run.Stats(elapsed)

	d.summaryPara.Text = fmt.Sprintf(
		"Brokers: %s\n%s\nElapsed: %s | Sent: %d | Received: %d | Handshake failures: %d",
		d.testConfig.Brokers,
		d.formatTestParams(),
		elapsed.Round(time.Second),
		totals.MessagesSent,
		totals.MessagesReceived,
		totals.HandshakeFailures,
	)

	d.latencyPara.Text = formatLatencyText(d.lastSnap, totals)

	d.totalsPara.Text = fmt.Sprintf(
		"Sent:            %d (%.1f msg/s)\nReceived:        %d (%.1f msg/s)\nBytes out:       %d\nBytes in:        %d\nDecode errors:   %d\nLatency samples: %d",
		totals.MessagesSent,
		totals.SendRate,
		totals.MessagesReceived,
		totals.ReceiveRate,
		totals.BytesSent,
		totals.BytesReceived,
		totals.DecodeErrors,
		totals.LatencySamples,
	)
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// formatLatencyText combines the live second's percentiles with the
// whole-run histogram.
func formatLatencyText(snap stats.Snapshot, totals collector.Stats) string {
	if totals.LatencySamples == 0 {
		return "Awaiting samples"
	}
	lines := []string{
		fmt.Sprintf("Run mean: %.2fms", totals.MeanLatencyMs),
		fmt.Sprintf("Run P50:  %.2fms", totals.P50LatencyMs),
		fmt.Sprintf("Run P99:  %.2fms", totals.P99LatencyMs),
		fmt.Sprintf("Run max:  %.2fms", totals.MaxLatencyMs),
	}
	if len(snap.Latencies) > 0 {
		lines = append(lines,
			fmt.Sprintf("Last second avg: %.2fms", collector.MaxAvg(snap.Latencies)/1000),
			fmt.Sprintf("Last second P99: %.2fms", float64(collector.WorstP99(snap.Latencies))/1000),
		)
	}
	return strings.Join(lines, "\n")
}

func formatBytesPerSec(b int64) string {
	kb := float64(b) / 1024
	if kb >= 1024 {
		return fmt.Sprintf("%.1f MB/s", kb/1024)
	}
	return fmt.Sprintf("%.1f KB/s", kb)
}

// formatTestParams formats the test configuration parameters for display.
func (d *Dashboard) formatTestParams() string {
	var parts []string

	if d.testConfig.Transport != "" && d.testConfig.Transport != "tcp" {
		parts = append(parts, fmt.Sprintf("Transport: %s", d.testConfig.Transport))
	}

	parts = append(parts, fmt.Sprintf("Publishers: %d", d.testConfig.Publishers))
	parts = append(parts, fmt.Sprintf("Consumers: %d", d.testConfig.Consumers))

	if d.testConfig.Topics != "" {
		parts = append(parts, fmt.Sprintf("Topics: %s", d.testConfig.Topics))
	}

	if d.testConfig.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.testConfig.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if d.testConfig.PayloadSize > 0 {
		parts = append(parts, fmt.Sprintf("Payload: %dB", d.testConfig.PayloadSize))
	}

	if d.testConfig.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.testConfig.Duration))
	}

	if d.testConfig.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.testConfig.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
