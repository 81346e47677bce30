// Package pipeline collects findings from concurrent scan drivers,
// deduplicates them by probe URL, persists evidence in batches and forwards
// each unique finding to the registered sinks exactly once.
//
// Only the consumer goroutine touches the dedup set and the batch; producers
// only ever send on the channel.
//
// Termination is explicit. Producers register with Add and finish with Done;
// once Seal has been called and every registered producer is done, the
// channel is closed and the consumer drains whatever is left, flushes the
// final partial batch and exits.
package pipeline

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/evidence"
	"github.com/zerofox/zerofox/pkg/finding"
)

// Sink receives each unique finding once, in consumer drain order.
type Sink interface {
	OnFinding(ctx context.Context, f *finding.Finding)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, f *finding.Finding)

// OnFinding calls fn.
func (fn SinkFunc) OnFinding(ctx context.Context, f *finding.Finding) { fn(ctx, f) }

// Verifier confirms a textual hit with a higher-fidelity check.
type Verifier interface {
	Verify(ctx context.Context, probeURL, payload string) (bool, error)
}

// Config configures a Pipeline.
type Config struct {
	// Store receives evidence batches; nil discards evidence
	Store evidence.Store

	// Sinks are called for every unique finding
	Sinks []Sink

	// Verifier, if set, runs on every unique finding before it is reported
	Verifier Verifier

	// BatchSize is the number of unique findings buffered per flush
	BatchSize int

	// Buffer is the findings channel capacity
	Buffer int

	Logger *slog.Logger
}

// Stats holds pipeline counters. Received counts raw events, so
// Received == Unique + Duplicates once the pipeline has drained.
type Stats struct {
	Received        int64
	SmokeEvents     int64
	FullEvents      int64
	Unique          int64
	Duplicates      int64
	Persisted       int64
	PersistFailures int64
	Flushes         int64
	Verified        int64
	Suspect         int64
	VerifyErrors    int64
}

type counters struct {
	received, smoke, full      atomic.Int64
	unique, duplicates         atomic.Int64
	persisted, persistFailures atomic.Int64
	flushes                    atomic.Int64
	verified, suspect, vErrors atomic.Int64
}

// Pipeline is a single-consumer findings queue.
type Pipeline struct {
	ch        chan *finding.Finding
	cfg       Config
	logger    *slog.Logger
	producers sync.WaitGroup
	sealOnce  sync.Once
	startOnce sync.Once
	done      chan struct{}

	// consumer-owned
	seen  map[string]struct{}
	batch []*finding.Finding
	hits  []string

	c counters
}

// New creates a pipeline. Call Start before producers begin emitting.
func New(cfg Config) *Pipeline {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.EvidenceBatch
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaults.ChannelFindings
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		ch:     make(chan *finding.Finding, cfg.Buffer),
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
		seen:   make(map[string]struct{}),
		batch:  make([]*finding.Finding, 0, cfg.BatchSize),
	}
}

// Start launches the consumer. Verification honours ctx; evidence and sinks
// run detached from its cancellation so a cancelled scan still flushes
// everything it found.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		go p.consume(ctx)
	})
}

// Add registers n producers. It must not be called after Seal.
func (p *Pipeline) Add(n int) { p.producers.Add(n) }

// Done marks one producer finished.
func (p *Pipeline) Done() { p.producers.Done() }

// Emit queues a finding. It blocks while the buffer is full and must only
// be called by a registered producer that has not yet called Done.
func (p *Pipeline) Emit(f *finding.Finding) {
	p.ch <- f
}

// Seal declares that no more producers will register. The channel closes as
// soon as every registered producer is done.
func (p *Pipeline) Seal() {
	p.sealOnce.Do(func() {
		go func() {
			p.producers.Wait()
			close(p.ch)
		}()
	})
}

// Wait blocks until the consumer has drained, flushed and exited.
func (p *Pipeline) Wait() {
	<-p.done
}

// Hits returns the sorted unique probe URLs. Valid after Wait.
func (p *Pipeline) Hits() []string {
	out := slices.Clone(p.hits)
	slices.Sort(out)
	return out
}

// Stats returns a live snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:        p.c.received.Load(),
		SmokeEvents:     p.c.smoke.Load(),
		FullEvents:      p.c.full.Load(),
		Unique:          p.c.unique.Load(),
		Duplicates:      p.c.duplicates.Load(),
		Persisted:       p.c.persisted.Load(),
		PersistFailures: p.c.persistFailures.Load(),
		Flushes:         p.c.flushes.Load(),
		Verified:        p.c.verified.Load(),
		Suspect:         p.c.suspect.Load(),
		VerifyErrors:    p.c.vErrors.Load(),
	}
}

func (p *Pipeline) consume(ctx context.Context) {
	defer close(p.done)
	detached := context.WithoutCancel(ctx)

	for f := range p.ch {
		p.c.received.Add(1)
		switch f.Stage {
		case finding.StageSmoke:
			p.c.smoke.Add(1)
		case finding.StageFull:
			p.c.full.Add(1)
		}

		if _, dup := p.seen[f.ProbeURL]; dup {
			p.c.duplicates.Add(1)
			continue
		}
		p.seen[f.ProbeURL] = struct{}{}
		p.hits = append(p.hits, f.ProbeURL)
		p.c.unique.Add(1)

		p.verify(ctx, f)

		p.batch = append(p.batch, f)
		for _, s := range p.cfg.Sinks {
			s.OnFinding(detached, f)
		}
		if len(p.batch) >= p.cfg.BatchSize {
			p.flush(detached)
		}
	}
	p.flush(detached)
}

func (p *Pipeline) verify(ctx context.Context, f *finding.Finding) {
	if p.cfg.Verifier == nil || ctx.Err() != nil {
		return
	}
	ok, err := p.cfg.Verifier.Verify(ctx, f.ProbeURL, f.Payload)
	if err != nil {
		p.c.vErrors.Add(1)
		p.logger.Warn("verification failed",
			slog.String("probe_url", f.ProbeURL),
			slog.String("error", err.Error()))
		return
	}
	if err := f.Verify(ok); err != nil {
		p.logger.Debug("verification ignored", slog.String("error", err.Error()))
		return
	}
	if ok {
		p.c.verified.Add(1)
	} else {
		p.c.suspect.Add(1)
	}
}

func (p *Pipeline) flush(ctx context.Context) {
	if len(p.batch) == 0 {
		return
	}
	batch := p.batch
	p.batch = make([]*finding.Finding, 0, p.cfg.BatchSize)
	p.c.flushes.Add(1)

	if p.cfg.Store == nil {
		return
	}
	n, err := p.cfg.Store.Persist(ctx, batch)
	p.c.persisted.Add(int64(n))
	if err != nil {
		p.c.persistFailures.Add(int64(len(batch) - n))
		p.logger.Error("evidence flush incomplete",
			slog.Int("batch", len(batch)),
			slog.Int("written", n),
			slog.String("error", err.Error()))
		return
	}
	p.logger.Debug("evidence flushed", slog.Int("count", n))
}
