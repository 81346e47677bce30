// Package duration provides canonical time constants for the scanner.
//
// Usage:
//
//	client := httpclient.New(httpclient.Config{Timeout: duration.ProbeTimeout})
//	time.Sleep(duration.StagePause)
package duration

import "time"

// ============================================================================
// HTTP CLIENT TIMEOUTS
// ============================================================================

const (
	// ProbeTimeout bounds one probe request including body read (6s)
	ProbeTimeout = 6 * time.Second

	// DialTimeout bounds TCP connect (5s)
	DialTimeout = 5 * time.Second

	// TLSHandshake bounds the TLS handshake (5s)
	TLSHandshake = 5 * time.Second

	// IdleConn is how long idle keep-alive connections stay pooled (90s)
	IdleConn = 90 * time.Second
)

// ============================================================================
// SCAN PACING
// ============================================================================
//
// PerHostInterval spaces requests to one host; StagePause separates stages.
// ============================================================================

const (
	// PerHostInterval is the minimum spacing between two requests to one host (20ms)
	PerHostInterval = 20 * time.Millisecond

	// StagePause is the delay between a smoke hit and the full stage (10ms)
	StagePause = 10 * time.Millisecond

	// HostErrorExpiry is how long a dead host stays skipped (5min)
	HostErrorExpiry = 5 * time.Minute
)

// ============================================================================
// VERIFICATION
// ============================================================================

const (
	// VerifyTimeout bounds one headless page load (15s)
	VerifyTimeout = 15 * time.Second

	// VerifySettle is how long the page may run scripts after load (1s)
	VerifySettle = 1 * time.Second

	// BrowserShutdown bounds graceful Chrome shutdown before a force kill (5s)
	BrowserShutdown = 5 * time.Second
)

// ============================================================================
// SHUTDOWN
// ============================================================================

const (
	// ReporterShutdown bounds reporter flush/close at scan end (10s)
	ReporterShutdown = 10 * time.Second

	// MetricsShutdown bounds the metrics HTTP server shutdown (5s)
	MetricsShutdown = 5 * time.Second
)
