// Package report fans scan lifecycle events out to live reporters.
//
// The package is organized by output:
//
// # Dispatch (report.go)
//
// Reporter, Dispatcher. A Dispatcher implements runner.Hooks and forwards
// every event to each registered Reporter. A panicking reporter is logged
// and skipped; it never stops the scan.
//
// # Console (console.go)
//
// One styled line per finding on the console writer.
//
// # JSONL (jsonl.go)
//
// One JSON object per event: scan_start, finding, candidate, scan_end.
//
// # Prometheus (prometheus.go)
//
// Counters and gauges on a private registry served at /metrics.
//
// # OpenTelemetry (otel.go)
//
// A root span per scan with one event per reflection and per candidate.
//
// # Summary (summary.go)
//
// A text/template rendered once when the scan ends.
package report
