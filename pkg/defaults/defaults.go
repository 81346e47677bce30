// Package defaults provides canonical default values for the scanner.
// Every runtime knob that has a default lives here so the CLI, the config
// file loader and the library constructors agree on the same numbers.
//
// Usage:
//
//	cfg.Concurrency = defaults.Concurrency
//	cfg.BatchSize = defaults.EvidenceBatch
package defaults

import "fmt"

// Version is the current zerofox version
const Version = "2.1.0"

// ToolName is the lowercase program name used in user agents and file headers.
const ToolName = "zerofox"

// ============================================================================
// CONCURRENCY SETTINGS
// ============================================================================
//
// Concurrency bounds the number of candidate URLs driven at once. It is an
// admission limit, not a socket limit: one candidate issues its probes
// sequentially.
// ============================================================================

const (
	// Concurrency is the default number of candidates driven at once (150)
	Concurrency = 150

	// ConcurrencyMax caps user-supplied concurrency (2000)
	ConcurrencyMax = 2000

	// ChannelFindings is the buffer of the findings channel (1000)
	ChannelFindings = 1000
)

// ============================================================================
// RATE LIMITING
// ============================================================================

const (
	// GlobalRPS is the aggregate request ceiling across all hosts (300 req/s)
	GlobalRPS = 300

	// VerifyRPS is the rate at which headless verification may open pages (2 pages/s)
	VerifyRPS = 2

	// MaxHostErrors disables the dead host short circuit when zero
	MaxHostErrors = 0
)

// ============================================================================
// PAYLOAD SETTINGS
// ============================================================================

const (
	// SmokeCount is the number of leading payloads used for the smoke stage (30)
	SmokeCount = 30

	// EvidenceBatch is how many unique findings are buffered before a flush (20)
	EvidenceBatch = 20

	// MaxBodyBytes bounds how much of each response is read (2MB)
	MaxBodyBytes = 2 * 1024 * 1024
)

// ============================================================================
// OUTPUT
// ============================================================================

const (
	// OutputDir is the default directory for evidence and result files
	OutputDir = "output_async"

	// EvidenceDir is the evidence subdirectory inside OutputDir
	EvidenceDir = "evidence"

	// HitsFile is the sorted newline-delimited list of reflecting probe URLs
	HitsFile = "xss_found_urls.txt"

	// MaxEvidenceName caps the filesystem-safe stem of an evidence file
	MaxEvidenceName = 200
)

// ============================================================================
// HTTP HEADERS
// ============================================================================

const (
	// AcceptHTML accepts HTML and related types (standard browser)
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// ============================================================================
// USER AGENTS
// ============================================================================

const (
	// UAChrome is a Chrome user agent
	UAChrome = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// UAFirefox is a Firefox user agent
	UAFirefox = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"

	// UAMinimal is a minimal user agent
	UAMinimal = "zerofox/" + Version
)

// UserAgent returns the zerofox user agent with context
func UserAgent(context string) string {
	if context == "" {
		return UAMinimal
	}
	return fmt.Sprintf("zerofox/%s (%s)", Version, context)
}
