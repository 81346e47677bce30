package report

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
	"github.com/zerofox/zerofox/pkg/ui"
)

// Console prints each finding as it is confirmed unique and a summary at
// the end. Finding lines go to W (stdout by default) so they can be piped;
// banners and the summary go to the ui output.
type Console struct {
	w           io.Writer
	showPayload bool

	mu    sync.Mutex
	title cases.Caser
	seen  atomic.Int64
}

// ConsoleOptions configures the console reporter.
type ConsoleOptions struct {
	// W receives one line per finding; nil means stdout
	W io.Writer

	// ShowPayload appends the payload to each line
	ShowPayload bool
}

// NewConsole creates a console reporter.
func NewConsole(opts ConsoleOptions) *Console {
	w := opts.W
	if w == nil {
		w = os.Stdout
	}
	return &Console{
		w:           w,
		showPayload: opts.ShowPayload,
		title:       cases.Title(language.English),
	}
}

func (c *Console) OnScanStart(_ context.Context, info runner.ScanInfo) {
	ui.PrintSection("Scan " + info.ID)
	ui.PrintConfigLine("Candidates", strconv.Itoa(info.Candidates))
	if info.Filtered > 0 {
		ui.PrintConfigLine("Filtered", strconv.Itoa(info.Filtered)+" without parameters")
	}
	ui.PrintConfigLine("Payloads", fmt.Sprintf("%d smoke / %d full", info.Smoke, info.Full))
	ui.PrintConfigLine("Concurrency", strconv.Itoa(info.Concurrency))
	fmt.Fprintln(ui.Output())
}

func (c *Console) OnFinding(_ context.Context, f *finding.Finding) {
	c.seen.Add(1)
	parts := []ui.BracketPart{
		ui.StageBracket(f.Stage.String()),
		ui.ContextBracket(string(f.Context)),
	}
	if f.StatusCode > 0 {
		parts = append(parts, ui.StatusBracket(f.StatusCode))
	}
	if v := f.Verification(); v != finding.Unverified {
		parts = append(parts, ui.BracketPart{Text: v.String(), Style: ui.VerificationStyle(v.String())})
	}
	line := ui.Brackets(parts...) + " " + ui.URLStyle.Render(f.ProbeURL)
	if c.showPayload {
		line += " " + ui.Brackets(ui.MutedBracket(ui.Truncate(f.Payload, 60)))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *Console) OnCandidate(context.Context, scanner.Outcome) {}

func (c *Console) OnScanEnd(_ context.Context, res *runner.Result) {
	c.mu.Lock()
	smoke := c.title.String(finding.StageSmoke.String()) + " hits"
	full := c.title.String(finding.StageFull.String()) + " hits"
	c.mu.Unlock()

	ui.PrintSection("Summary")
	stats := []ui.Stat{
		{Label: "Candidates", Value: strconv.Itoa(res.Candidates)},
		{Label: "Completed", Value: strconv.FormatInt(res.Completed, 10)},
		{Label: "Probes", Value: strconv.FormatInt(res.Driver.Probes, 10)},
		{Label: smoke, Value: strconv.FormatInt(res.Driver.SmokeHits, 10)},
		{Label: full, Value: strconv.FormatInt(res.Driver.FullHits, 10)},
		{Label: "Unique findings", Value: strconv.FormatInt(res.Pipeline.Unique, 10)},
		{Label: "Duplicates", Value: strconv.FormatInt(res.Pipeline.Duplicates, 10)},
		{Label: "Persist failures", Value: strconv.FormatInt(res.Pipeline.PersistFailures, 10)},
	}
	if res.Pipeline.Verified+res.Pipeline.Suspect+res.Pipeline.VerifyErrors > 0 {
		stats = append(stats,
			ui.Stat{Label: "Verified", Value: strconv.FormatInt(res.Pipeline.Verified, 10)},
			ui.Stat{Label: "Suspect", Value: strconv.FormatInt(res.Pipeline.Suspect, 10)})
	}
	stats = append(stats, ui.Stat{Label: "Duration", Value: res.Duration().Round(time.Millisecond).String()})
	ui.PrintStats(stats)

	switch {
	case res.Canceled:
		ui.PrintWarning(fmt.Sprintf("scan canceled after %d of %d candidates", res.Completed, res.Candidates))
	case len(res.Hits) == 0:
		ui.PrintInfo("no reflections found")
	}
	if res.HitsFile != "" {
		ui.PrintSuccess(fmt.Sprintf("%d hits written to %s", len(res.Hits), res.HitsFile))
	}
}

// Findings returns how many findings were printed.
func (c *Console) Findings() int64 { return c.seen.Load() }

func (c *Console) Close() error { return nil }
