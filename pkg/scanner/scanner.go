// Package scanner drives the two-stage probe sequence for one candidate URL.
//
// A candidate moves through
//
//	Queued → RateWait → SmokeProbing → {FoundSmoke | NoHit}
//	       → [FullProbing → {FoundFull | NoHit}] → Done
//
// RateWait and the probing state alternate once per payload: both gates are
// satisfied before every request. The full stage only starts after a smoke
// hit has been emitted, and the first reflecting payload ends each stage.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/inject"
	"github.com/zerofox/zerofox/pkg/payloads"
	"github.com/zerofox/zerofox/pkg/probe"
)

// State is a driver state for one candidate.
type State uint8

const (
	StateQueued State = iota
	StateRateWait
	StateSmokeProbing
	StateFoundSmoke
	StateFullProbing
	StateFoundFull
	StateNoHit
	StateDone
)

var stateNames = [...]string{
	StateQueued:       "queued",
	StateRateWait:     "rate_wait",
	StateSmokeProbing: "smoke_probing",
	StateFoundSmoke:   "found_smoke",
	StateFullProbing:  "full_probing",
	StateFoundFull:    "found_full",
	StateNoHit:        "no_hit",
	StateDone:         "done",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Probing reports whether s is one of the two request-issuing states.
func (s State) Probing() bool {
	return s == StateSmokeProbing || s == StateFullProbing
}

// Gate delays a request to host until it is permitted.
// *ratelimit.Governor satisfies it.
type Gate interface {
	Wait(ctx context.Context, host string) error
}

// Emitter accepts findings. *pipeline.Pipeline satisfies it.
type Emitter interface {
	Emit(f *finding.Finding)
}

// Observer is notified of every state a candidate enters.
type Observer func(candidate string, s State)

// Config configures a Driver.
type Config struct {
	Prober   probe.Prober
	Gate     Gate
	Emitter  Emitter
	Payloads payloads.Set

	// StagePause is slept between a smoke hit and the full stage
	StagePause time.Duration

	Observer Observer
	Logger   *slog.Logger
}

// Outcome summarises one Drive call.
type Outcome struct {
	Candidate string
	Skipped   bool
	Probes    int
	Smoke     *finding.Finding
	Full      *finding.Finding
}

// Stats holds driver counters.
type Stats struct {
	Driven    int64
	Skipped   int64
	Probes    int64
	SmokeHits int64
	FullHits  int64
}

// Driver runs the two-stage sequence. One Driver serves every candidate of a
// scan and is safe for concurrent use.
type Driver struct {
	prober  probe.Prober
	gate    Gate
	emitter Emitter
	set     payloads.Set
	pause   time.Duration
	observe Observer
	logger  *slog.Logger

	driven, skipped, probes, smokeHits, fullHits atomic.Int64
}

// New creates a Driver. Prober and Emitter are required; a nil Gate
// disables rate limiting.
func New(cfg Config) (*Driver, error) {
	if cfg.Prober == nil {
		return nil, ErrNoProber
	}
	if cfg.Emitter == nil {
		return nil, ErrNoEmitter
	}
	if cfg.Gate == nil {
		cfg.Gate = noGate{}
	}
	if cfg.Observer == nil {
		cfg.Observer = func(string, State) {}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Driver{
		prober:  cfg.Prober,
		gate:    cfg.Gate,
		emitter: cfg.Emitter,
		set:     cfg.Payloads,
		pause:   cfg.StagePause,
		observe: cfg.Observer,
		logger:  cfg.Logger,
	}, nil
}

// Drive runs both stages for candidate and returns once it reaches Done.
// A candidate without a query issues no probes.
func (d *Driver) Drive(ctx context.Context, candidate string) Outcome {
	out := Outcome{Candidate: candidate}
	defer d.observe(candidate, StateDone)
	d.driven.Add(1)

	if !inject.HasQuery(candidate) {
		out.Skipped = true
		d.skipped.Add(1)
		return out
	}
	host := probe.Host(candidate)

	out.Smoke = d.stage(ctx, candidate, host, finding.StageSmoke, d.set.Smoke, &out)
	if out.Smoke == nil {
		d.observe(candidate, StateNoHit)
		return out
	}
	d.observe(candidate, StateFoundSmoke)
	d.smokeHits.Add(1)
	d.emitter.Emit(out.Smoke)

	if len(d.set.Full) == 0 || !d.sleep(ctx) {
		return out
	}

	out.Full = d.stage(ctx, candidate, host, finding.StageFull, d.set.Full, &out)
	if out.Full == nil {
		d.observe(candidate, StateNoHit)
		return out
	}
	d.observe(candidate, StateFoundFull)
	d.fullHits.Add(1)
	d.emitter.Emit(out.Full)
	return out
}

// stage tries payloads in order and returns the first reflection.
func (d *Driver) stage(ctx context.Context, candidate, host string, stage finding.Stage, list []string, out *Outcome) *finding.Finding {
	probing := StateSmokeProbing
	if stage == finding.StageFull {
		probing = StateFullProbing
	}

	for _, payload := range list {
		if ctx.Err() != nil {
			return nil
		}
		d.observe(candidate, StateRateWait)
		if err := d.gate.Wait(ctx, host); err != nil {
			return nil
		}

		d.observe(candidate, probing)
		probeURL := inject.Inject(candidate, payload)
		out.Probes++
		d.probes.Add(1)

		resp, ok := d.prober.Probe(ctx, probeURL)
		if !ok || !probe.Reflects(payload, resp.Body) {
			continue
		}

		f := finding.New(probeURL, payload, resp.Body, candidate, stage)
		f.StatusCode = resp.StatusCode
		f.Context = probe.ContextOf(resp.Body, payload)
		d.logger.Debug("reflection found",
			slog.String("probe_url", probeURL),
			slog.String("stage", stage.String()),
			slog.String("context", string(f.Context)))
		return f
	}
	return nil
}

func (d *Driver) sleep(ctx context.Context) bool {
	if d.pause <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d.pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Stats returns a snapshot of driver counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Driven:    d.driven.Load(),
		Skipped:   d.skipped.Load(),
		Probes:    d.probes.Load(),
		SmokeHits: d.smokeHits.Load(),
		FullHits:  d.fullHits.Load(),
	}
}

type noGate struct{}

func (noGate) Wait(ctx context.Context, _ string) error { return ctx.Err() }
