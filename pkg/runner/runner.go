// Package runner orchestrates one scan: it builds the rate governor, the
// findings pipeline and the bounded driver pool, drives every candidate
// through both stages, and writes the final hit list once the pipeline has
// drained.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/evidence"
	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/inject"
	"github.com/zerofox/zerofox/pkg/payloads"
	"github.com/zerofox/zerofox/pkg/pipeline"
	"github.com/zerofox/zerofox/pkg/probe"
	"github.com/zerofox/zerofox/pkg/ratelimit"
	"github.com/zerofox/zerofox/pkg/scanner"
	"github.com/zerofox/zerofox/pkg/workerpool"
)

// ScanInfo describes a scan that is about to start.
type ScanInfo struct {
	ID          string
	Candidates  int
	Filtered    int
	Smoke       int
	Full        int
	Concurrency int
	Started     time.Time
}

// Hooks observe a scan. Every method may be called from the pipeline
// consumer or a driver goroutine and must not block for long.
type Hooks interface {
	OnScanStart(ctx context.Context, info ScanInfo)
	OnFinding(ctx context.Context, f *finding.Finding)
	OnCandidate(ctx context.Context, out scanner.Outcome)
	OnScanEnd(ctx context.Context, res *Result)
}

// Config configures a Runner.
type Config struct {
	// Concurrency bounds how many candidates are driven at once
	Concurrency int

	// PerHostInterval is the minimum spacing between requests to one host
	PerHostInterval time.Duration

	// RPS is the aggregate request ceiling across all hosts
	RPS int

	// StagePause is slept between a smoke hit and the full stage
	StagePause time.Duration

	// BatchSize is the evidence flush size
	BatchSize int

	// OutputDir receives evidence and the hit list; empty disables both
	// unless Store is set
	OutputDir string

	// Prober sends the requests (required)
	Prober probe.Prober

	// Store overrides the file evidence store under OutputDir
	Store evidence.Store

	// Verifier optionally confirms unique findings
	Verifier pipeline.Verifier

	Hooks    Hooks
	Observer scanner.Observer
	Logger   *slog.Logger
}

// DefaultConfig returns the stock scan settings. Prober must still be set.
func DefaultConfig() Config {
	return Config{
		Concurrency:     defaults.Concurrency,
		PerHostInterval: duration.PerHostInterval,
		RPS:             defaults.GlobalRPS,
		StagePause:      duration.StagePause,
		BatchSize:       defaults.EvidenceBatch,
		OutputDir:       defaults.OutputDir,
	}
}

// Result summarises a finished scan.
type Result struct {
	ScanID     string
	Hits       []string
	HitsFile   string
	Candidates int
	Filtered   int
	Completed  int64
	Peak       int
	Panics     int64
	Canceled   bool

	Pipeline pipeline.Stats
	Driver   scanner.Stats
	Host     ratelimit.Stats
	Global   ratelimit.Stats

	Started  time.Time
	Finished time.Time
}

// Duration returns the wall time of the scan.
func (r *Result) Duration() time.Duration { return r.Finished.Sub(r.Started) }

// Runner executes scans. Each Run builds its own governor and pipeline, so
// one Runner may serve several independent scans.
type Runner struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and creates a Runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidConfig, cfg.Concurrency)
	}
	if cfg.Prober == nil {
		return nil, fmt.Errorf("%w: prober is required", ErrInvalidConfig)
	}
	if cfg.RPS < 0 || cfg.PerHostInterval < 0 || cfg.StagePause < 0 {
		return nil, fmt.Errorf("%w: rates and intervals must not be negative", ErrInvalidConfig)
	}
	if cfg.Hooks == nil {
		cfg.Hooks = nopHooks{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}, nil
}

// Run scans candidates with the given payloads and returns the sorted set
// of probe URLs that produced a finding. Candidates without a query string
// and repeats of an earlier candidate are dropped and counted in Filtered.
// Per-candidate failures never abort the scan; cancelling ctx stops
// admitting candidates and aborts in-flight probes, after which the pipeline
// still drains and flushes.
func (r *Runner) Run(ctx context.Context, candidates []string, set payloads.Set) (*Result, error) {
	res := &Result{
		ScanID:  uuid.NewString(),
		Started: time.Now(),
	}
	log := r.logger.With(slog.String("scan_id", res.ScanID))

	targets := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if !inject.HasQuery(c) {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		targets = append(targets, c)
	}
	res.Candidates = len(targets)
	res.Filtered = len(candidates) - len(targets)

	store := r.cfg.Store
	if store == nil && r.cfg.OutputDir != "" {
		store = evidence.NewFileStore(r.cfg.OutputDir)
	}

	hooks := r.cfg.Hooks
	gov := ratelimit.NewGovernor(r.cfg.PerHostInterval, r.cfg.RPS)
	pl := pipeline.New(pipeline.Config{
		Store:     store,
		Sinks:     []pipeline.Sink{pipeline.SinkFunc(hooks.OnFinding)},
		Verifier:  r.cfg.Verifier,
		BatchSize: r.cfg.BatchSize,
		Logger:    log,
	})
	driver, err := scanner.New(scanner.Config{
		Prober:     r.cfg.Prober,
		Gate:       gov,
		Emitter:    pl,
		Payloads:   set,
		StagePause: r.cfg.StagePause,
		Observer:   r.cfg.Observer,
		Logger:     log,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	pool := workerpool.New(r.cfg.Concurrency).OnPanic(func(rec any) {
		log.Error("driver panic", slog.Any("panic", rec))
	})

	hooks.OnScanStart(ctx, ScanInfo{
		ID:          res.ScanID,
		Candidates:  res.Candidates,
		Filtered:    res.Filtered,
		Smoke:       len(set.Smoke),
		Full:        len(set.Full),
		Concurrency: pool.Cap(),
		Started:     res.Started,
	})
	log.Info("scan started",
		slog.Int("candidates", res.Candidates),
		slog.Int("filtered", res.Filtered),
		slog.Int("smoke", len(set.Smoke)),
		slog.Int("full", len(set.Full)),
		slog.Int("concurrency", pool.Cap()),
		slog.Duration("per_host_interval", gov.Host.Interval()),
		slog.Duration("global_interval", gov.Global.Interval()))

	pl.Start(ctx)

	for _, c := range targets {
		candidate := c
		if r.cfg.Observer != nil {
			r.cfg.Observer(candidate, scanner.StateQueued)
		}
		pl.Add(1)
		err := pool.SubmitContext(ctx, func() {
			defer pl.Done()
			out := driver.Drive(ctx, candidate)
			hooks.OnCandidate(ctx, out)
		})
		if err != nil {
			pl.Done()
			log.Warn("admission stopped", slog.String("reason", err.Error()))
			break
		}
	}

	pool.Close()
	pl.Seal()
	pl.Wait()

	res.Hits = pl.Hits()
	if r.cfg.OutputDir != "" {
		path, err := evidence.WriteHits(r.cfg.OutputDir, res.Hits)
		if err != nil {
			log.Error("hit list not written", slog.String("error", err.Error()))
		} else {
			res.HitsFile = path
		}
	}

	res.Completed = pool.Completed()
	res.Peak = pool.Peak()
	res.Panics = pool.Panics()
	res.Canceled = ctx.Err() != nil
	res.Pipeline = pl.Stats()
	res.Driver = driver.Stats()
	res.Host = gov.Host.Stats()
	res.Global = gov.Global.Stats()
	res.Finished = time.Now()

	log.Info("scan finished",
		slog.Int("hits", len(res.Hits)),
		slog.Int64("probes", res.Driver.Probes),
		slog.Int64("completed", res.Completed),
		slog.Int64("panics", res.Panics),
		slog.Bool("canceled", res.Canceled),
		slog.Duration("elapsed", res.Duration()))

	hooks.OnScanEnd(context.WithoutCancel(ctx), res)
	return res, nil
}

type nopHooks struct{}

func (nopHooks) OnScanStart(context.Context, ScanInfo)        {}
func (nopHooks) OnFinding(context.Context, *finding.Finding)  {}
func (nopHooks) OnCandidate(context.Context, scanner.Outcome) {}
func (nopHooks) OnScanEnd(context.Context, *Result)           {}
