package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/inject"
	"github.com/zerofox/zerofox/pkg/jsonutil"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
)

// JSONL streams one JSON document per event.
type JSONL struct {
	enc    *jsonutil.Encoder
	closer io.Closer
	scanID string
	logger *slog.Logger
}

type jsonlEvent struct {
	Event     string    `json:"event"`
	ScanID    string    `json:"scan_id"`
	Timestamp time.Time `json:"ts"`

	Finding   *finding.Record `json:"finding,omitzero"`
	Candidate *candidateLine  `json:"candidate,omitzero"`
	Start     *startLine      `json:"start,omitzero"`
	End       *endLine        `json:"end,omitzero"`
}

type startLine struct {
	Candidates  int `json:"candidates"`
	Filtered    int `json:"filtered"`
	Smoke       int `json:"smoke_payloads"`
	Full        int `json:"full_payloads"`
	Concurrency int `json:"concurrency"`
}

type candidateLine struct {
	URL     string   `json:"url"`
	Params  []string `json:"params,omitzero"`
	Outcome string   `json:"outcome"`
	Probes  int      `json:"probes"`
}

type endLine struct {
	Hits            []string `json:"hits"`
	HitsFile        string   `json:"hits_file,omitzero"`
	Candidates      int      `json:"candidates"`
	Completed       int64    `json:"completed"`
	Probes          int64    `json:"probes"`
	SmokeHits       int64    `json:"smoke_hits"`
	FullHits        int64    `json:"full_hits"`
	Unique          int64    `json:"unique"`
	Duplicates      int64    `json:"duplicates"`
	PersistFailures int64    `json:"persist_failures"`
	Verified        int64    `json:"verified"`
	Suspect         int64    `json:"suspect"`
	Canceled        bool     `json:"canceled"`
	DurationMs      int64    `json:"duration_ms"`
}

// NewJSONL writes events to w. If w is an io.Closer it is closed by Close.
func NewJSONL(w io.Writer, logger *slog.Logger) *JSONL {
	j := &JSONL{enc: jsonutil.NewStreamEncoder(w), logger: orDefault(logger)}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// OpenJSONL creates (or truncates) path and streams events to it.
func OpenJSONL(path string, logger *slog.Logger) (*JSONL, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	return NewJSONL(f, logger), nil
}

func (j *JSONL) write(ev jsonlEvent) {
	ev.ScanID = j.scanID
	ev.Timestamp = time.Now().UTC()
	if err := j.enc.Encode(ev); err != nil {
		j.logger.Warn("jsonl write failed",
			slog.String("event", ev.Event),
			slog.String("error", err.Error()))
	}
}

func (j *JSONL) OnScanStart(_ context.Context, info runner.ScanInfo) {
	j.scanID = info.ID
	j.write(jsonlEvent{Event: "scan_start", Start: &startLine{
		Candidates:  info.Candidates,
		Filtered:    info.Filtered,
		Smoke:       info.Smoke,
		Full:        info.Full,
		Concurrency: info.Concurrency,
	}})
}

func (j *JSONL) OnFinding(_ context.Context, f *finding.Finding) {
	rec := f.Record()
	j.write(jsonlEvent{Event: "finding", Finding: &rec})
}

func (j *JSONL) OnCandidate(_ context.Context, out scanner.Outcome) {
	j.write(jsonlEvent{Event: "candidate", Candidate: &candidateLine{
		URL:     out.Candidate,
		Params:  inject.Params(out.Candidate),
		Outcome: candidateOutcome(out),
		Probes:  out.Probes,
	}})
}

func (j *JSONL) OnScanEnd(_ context.Context, res *runner.Result) {
	hits := res.Hits
	if hits == nil {
		hits = []string{}
	}
	j.write(jsonlEvent{Event: "scan_end", End: &endLine{
		Hits:            hits,
		HitsFile:        res.HitsFile,
		Candidates:      res.Candidates,
		Completed:       res.Completed,
		Probes:          res.Driver.Probes,
		SmokeHits:       res.Driver.SmokeHits,
		FullHits:        res.Driver.FullHits,
		Unique:          res.Pipeline.Unique,
		Duplicates:      res.Pipeline.Duplicates,
		PersistFailures: res.Pipeline.PersistFailures,
		Verified:        res.Pipeline.Verified,
		Suspect:         res.Pipeline.Suspect,
		Canceled:        res.Canceled,
		DurationMs:      res.Duration().Milliseconds(),
	}})
}

func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
