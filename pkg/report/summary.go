package report

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/finding"
	"github.com/zerofox/zerofox/pkg/jsonutil"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/scanner"
)

// DefaultSummaryTemplate renders a plain-text scan report.
const DefaultSummaryTemplate = `{{ upper .Tool }} scan {{ .Info.ID }}
{{ repeat 60 "=" }}
Started     {{ dateInZone "2006-01-02 15:04:05 MST" .Info.Started "UTC" }}
Duration    {{ .Result.Duration }}
Candidates  {{ .Result.Candidates }} ({{ .Result.Filtered }} filtered)
Probes      {{ .Result.Driver.Probes }}
Hits        {{ len .Result.Hits }}
{{- if .Result.Canceled }}
Status      canceled
{{- end }}
{{ if .Findings }}
Findings
{{ repeat 60 "-" }}
{{- range .Findings }}
[{{ .Stage }}] [{{ .Context }}]{{ if ne .Verification "unverified" }} [{{ .Verification }}]{{ end }} {{ .ProbeURL }}
    payload: {{ .Payload | trunc 120 }}
{{- end }}
{{ else }}
No reflections found.
{{ end -}}
`

// SummaryData is the value a summary template is executed with.
type SummaryData struct {
	Tool     string
	Info     runner.ScanInfo
	Result   *runner.Result
	Findings []finding.Record
}

// Summary buffers findings during the scan and renders a template once the
// scan ends. Sprig functions plus "json" are available to templates.
type Summary struct {
	w      io.Writer
	closer io.Closer
	tmpl   *template.Template
	logger *slog.Logger

	mu       sync.Mutex
	info     runner.ScanInfo
	findings []finding.Record
}

// SummaryOptions configures the summary reporter.
type SummaryOptions struct {
	// TemplatePath overrides the built-in template
	TemplatePath string

	// TemplateString overrides the built-in template when TemplatePath is empty
	TemplateString string

	Logger *slog.Logger
}

// NewSummary parses the template and renders into w at scan end. If w is an
// io.Closer it is closed by Close.
func NewSummary(w io.Writer, opts SummaryOptions) (*Summary, error) {
	content := DefaultSummaryTemplate
	switch {
	case opts.TemplatePath != "":
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
		}
		content = string(data)
	case opts.TemplateString != "":
		content = opts.TemplateString
	}

	funcMap := sprig.TxtFuncMap()
	funcMap["json"] = tmplToJSON

	tmpl, err := template.New("summary").Funcs(funcMap).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTemplate, err)
	}

	s := &Summary{w: w, tmpl: tmpl, logger: orDefault(opts.Logger)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s, nil
}

// OpenSummary creates path and renders the summary into it.
func OpenSummary(path string, opts SummaryOptions) (*Summary, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, path, err)
	}
	s, err := NewSummary(f, opts)
	if err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Summary) OnScanStart(_ context.Context, info runner.ScanInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = info
	s.findings = s.findings[:0]
}

func (s *Summary) OnFinding(_ context.Context, f *finding.Finding) {
	rec := f.Record()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findings = append(s.findings, rec)
}

func (s *Summary) OnCandidate(context.Context, scanner.Outcome) {}

func (s *Summary) OnScanEnd(_ context.Context, res *runner.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	findings := append([]finding.Record(nil), s.findings...)
	sort.Slice(findings, func(i, j int) bool { return findings[i].ProbeURL < findings[j].ProbeURL })

	data := SummaryData{
		Tool:     defaults.ToolName,
		Info:     s.info,
		Result:   res,
		Findings: findings,
	}
	if err := s.tmpl.Execute(s.w, data); err != nil {
		s.logger.Error("summary render failed", slog.String("error", err.Error()))
	}
}

func (s *Summary) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

func tmplToJSON(v any) string {
	data, err := jsonutil.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
