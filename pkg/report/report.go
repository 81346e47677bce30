package report

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
)

// Reporter observes a scan and releases its resources on Close.
type Reporter interface {
	runner.Hooks
	Close() error
}

// Compile-time interface checks.
var (
	_ runner.Hooks = (*Dispatcher)(nil)
	_ Reporter     = (*Console)(nil)
	_ Reporter     = (*JSONL)(nil)
	_ Reporter     = (*Prometheus)(nil)
	_ Reporter     = (*OTel)(nil)
	_ Reporter     = (*Summary)(nil)
)

// Dispatcher routes every event to all registered reporters in
// registration order. A panicking reporter is logged and skipped.
// It is safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	reporters []Reporter
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher with the given reporters.
func NewDispatcher(logger *slog.Logger, reporters ...Reporter) *Dispatcher {
	return &Dispatcher{reporters: reporters, logger: orDefault(logger)}
}

// Register adds a reporter.
func (d *Dispatcher) Register(r Reporter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reporters = append(d.reporters, r)
}

// Len returns the number of registered reporters.
func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.reporters)
}

func (d *Dispatcher) each(event string, fn func(Reporter)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.reporters {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					d.logger.Error("reporter panic",
						slog.String("event", event),
						slog.Any("panic", rec))
				}
			}()
			fn(r)
		}()
	}
}

func (d *Dispatcher) OnScanStart(ctx context.Context, info runner.ScanInfo) {
	d.each("scan_start", func(r Reporter) { r.OnScanStart(ctx, info) })
}

func (d *Dispatcher) OnFinding(ctx context.Context, f *finding.Finding) {
	d.each("finding", func(r Reporter) { r.OnFinding(ctx, f) })
}

func (d *Dispatcher) OnCandidate(ctx context.Context, out scanner.Outcome) {
	d.each("candidate", func(r Reporter) { r.OnCandidate(ctx, out) })
}

func (d *Dispatcher) OnScanEnd(ctx context.Context, res *runner.Result) {
	d.each("scan_end", func(r Reporter) { r.OnScanEnd(ctx, res) })
}

// Close closes every reporter and joins their errors.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, r := range d.reporters {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	d.reporters = nil
	return errors.Join(errs...)
}

// candidateOutcome labels a driver outcome for metrics and logs.
func candidateOutcome(out scanner.Outcome) string {
	switch {
	case out.Skipped:
		return "skipped"
	case out.Full != nil:
		return "full_hit"
	case out.Smoke != nil:
		return "smoke_hit"
	default:
		return "miss"
	}
}
