package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
)

// Prometheus exposes scan metrics for scraping. The server starts in
// NewPrometheus and runs until Close.
type Prometheus struct {
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry
	opts     PrometheusOptions
	logger   *slog.Logger

	// Counters
	findingsTotal      *prometheus.CounterVec
	verificationsTotal *prometheus.CounterVec
	candidatesTotal    *prometheus.CounterVec
	probesTotal        prometheus.Counter

	// Gauges
	candidatesQueued    prometheus.Gauge
	hits                prometheus.Gauge
	scanDurationSeconds prometheus.Gauge

	// Histograms
	probesPerCandidate prometheus.Histogram

	mu     sync.Mutex
	closed bool
}

// PrometheusOptions configures the metrics reporter.
type PrometheusOptions struct {
	// Addr is the listen address (default ":9090"); ":0" picks a free port
	Addr string

	// Path for the metrics endpoint (default "/metrics")
	Path string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// NewPrometheus registers the metrics on a private registry and starts
// serving them.
func NewPrometheus(opts PrometheusOptions) (*Prometheus, error) {
	if opts.Addr == "" {
		opts.Addr = ":9090"
	}
	if opts.Path == "" {
		opts.Path = "/metrics"
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = duration.MetricsShutdown
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = duration.ReporterShutdown
	}

	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		opts:     opts,
		logger:   orDefault(opts.Logger),
	}
	if err := p.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	if err := p.startServer(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Prometheus) initMetrics() error {
	p.findingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofox_findings_total",
			Help: "Unique reflected findings by stage and reflection context",
		},
		[]string{"stage", "context"},
	)
	p.verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofox_verifications_total",
			Help: "Findings by verification status",
		},
		[]string{"status"},
	)
	p.candidatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zerofox_candidates_total",
			Help: "Candidates driven to completion by outcome",
		},
		[]string{"outcome"},
	)
	p.probesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "zerofox_probes_total",
		Help: "Probe requests issued",
	})
	p.candidatesQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zerofox_candidates_queued",
		Help: "Candidates admitted to the current scan",
	})
	p.hits = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zerofox_hits",
		Help: "Distinct probe URLs in the final hit list",
	})
	p.scanDurationSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "zerofox_scan_duration_seconds",
		Help: "Wall time of the last finished scan",
	})
	p.probesPerCandidate = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "zerofox_probes_per_candidate",
		Help:    "Probe requests issued per candidate",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 50, 100},
	})

	collectors := []prometheus.Collector{
		p.findingsTotal,
		p.verificationsTotal,
		p.candidatesTotal,
		p.probesTotal,
		p.candidatesQueued,
		p.hits,
		p.scanDurationSeconds,
		p.probesPerCandidate,
	}
	for _, c := range collectors {
		if err := p.registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Prometheus) startServer() error {
	ln, err := net.Listen("tcp", p.opts.Addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrListen, p.opts.Addr, err)
	}
	p.listener = ln

	mux := http.NewServeMux()
	mux.Handle(p.opts.Path, promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	p.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  p.opts.ReadTimeout,
		WriteTimeout: p.opts.WriteTimeout,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// MetricsAddr returns the URL of the metrics endpoint.
func (p *Prometheus) MetricsAddr() string {
	return "http://" + p.listener.Addr().String() + p.opts.Path
}

// Registry returns the private registry backing the endpoint.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) OnScanStart(_ context.Context, info runner.ScanInfo) {
	p.candidatesQueued.Set(float64(info.Candidates))
}

func (p *Prometheus) OnFinding(_ context.Context, f *finding.Finding) {
	p.findingsTotal.WithLabelValues(f.Stage.String(), string(f.Context)).Inc()
	p.verificationsTotal.WithLabelValues(f.Verification().String()).Inc()
}

func (p *Prometheus) OnCandidate(_ context.Context, out scanner.Outcome) {
	p.candidatesTotal.WithLabelValues(candidateOutcome(out)).Inc()
	p.probesTotal.Add(float64(out.Probes))
	if !out.Skipped {
		p.probesPerCandidate.Observe(float64(out.Probes))
	}
}

func (p *Prometheus) OnScanEnd(_ context.Context, res *runner.Result) {
	p.hits.Set(float64(len(res.Hits)))
	p.scanDurationSeconds.Set(res.Duration().Seconds())
}

// Close stops the metrics server.
func (p *Prometheus) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), duration.MetricsShutdown)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("prometheus: shutdown: %w", err)
	}
	return nil
}
