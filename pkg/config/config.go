// Package config resolves scan settings from built-in defaults, an optional
// YAML file and command-line flags, in that order of precedence.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/httpclient"
	"github.com/zerofox/zerofox/pkg/input"
)

// Config holds all scan options.
type Config struct {
	// Target settings
	URLs       input.StringSliceFlag `yaml:"urls"`
	ListFile   string                `yaml:"list"`
	Stdin      bool                  `yaml:"stdin"`
	MaxTargets int                   `yaml:"max_targets"` // 0 = unlimited

	// Payload settings
	PayloadFile string `yaml:"payloads"`    // empty = bundled list
	SmokeFile   string `yaml:"smoke_file"`  // empty = first SmokeCount payloads
	SmokeCount  int    `yaml:"smoke_count"` // default 30
	NoFull      bool   `yaml:"no_full"`     // smoke stage only

	// Execution settings
	Concurrency     int           `yaml:"concurrency"`
	PerHostInterval time.Duration `yaml:"per_host_interval"`
	RPS             int           `yaml:"rps"` // 0 = unlimited
	Timeout         time.Duration `yaml:"timeout"`
	StagePause      time.Duration `yaml:"stage_pause"`
	MaxHostErrors   int           `yaml:"max_host_errors"` // 0 = never skip hosts
	MaxBody         int64         `yaml:"max_body"`

	// Output settings
	OutputDir       string `yaml:"output_dir"`
	BatchSize       int    `yaml:"batch_size"`
	JSONLFile       string `yaml:"jsonl"`
	SummaryFile     string `yaml:"summary"`
	SummaryTemplate string `yaml:"summary_template"`
	ShowPayload     bool   `yaml:"show_payload"`

	// Network settings
	Proxies    input.StringSliceFlag `yaml:"proxies"`
	ProxyFile  string                `yaml:"proxy_file"`
	Insecure   bool                  `yaml:"insecure"`
	TLSProfile string                `yaml:"tls_profile"`
	UserAgent  string                `yaml:"user_agent"`

	// Verification settings
	Verify        bool          `yaml:"verify"`
	VerifyRPS     float64       `yaml:"verify_rps"`
	VerifyTimeout time.Duration `yaml:"verify_timeout"`
	ChromePath    string        `yaml:"chrome_path"`

	// Telemetry settings
	MetricsAddr  string `yaml:"metrics_addr"`
	OTelEndpoint string `yaml:"otel_endpoint"`
	OTelInsecure bool   `yaml:"otel_insecure"`

	// Display settings
	NoColor bool `yaml:"no_color"`
	Verbose bool `yaml:"verbose"`
	Silent  bool `yaml:"silent"`

	// ConfigFile is the YAML file the other fields were loaded from
	ConfigFile string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SmokeCount:      defaults.SmokeCount,
		Concurrency:     defaults.Concurrency,
		PerHostInterval: duration.PerHostInterval,
		RPS:             defaults.GlobalRPS,
		Timeout:         duration.ProbeTimeout,
		StagePause:      duration.StagePause,
		MaxHostErrors:   defaults.MaxHostErrors,
		MaxBody:         defaults.MaxBodyBytes,
		OutputDir:       defaults.OutputDir,
		BatchSize:       defaults.EvidenceBatch,
		TLSProfile:      httpclient.ProfileGo,
		UserAgent:       defaults.UAChrome,
		VerifyRPS:       defaults.VerifyRPS,
		VerifyTimeout:   duration.VerifyTimeout,
	}
}

// Load resolves the configuration for args (without the program or
// subcommand name). Flags always win over the file named by -config.
// Repeatable flags (-u, -proxy) add to the values from the file.
// Usage and parse errors are written to out.
func Load(args []string, out io.Writer) (*Config, error) {
	cfg := Default()
	fs := NewFlagSet(cfg, out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.ConfigFile == "" {
		return cfg, nil
	}

	path := cfg.ConfigFile
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	fs = NewFlagSet(cfg, out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	return cfg, nil
}

// LoadFile reads a YAML file over the defaults. Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidConfig, path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	cfg.ConfigFile = path
	return cfg, nil
}

// NewFlagSet binds every option to a flag whose default is the current
// value in cfg.
func NewFlagSet(cfg *Config, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(defaults.ToolName+" scan", flag.ContinueOnError)
	fs.SetOutput(out)

	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "YAML config file")

	// === INPUT ===
	fs.Var(&cfg.URLs, "u", "Target URL(s) - comma-separated or repeated")
	fs.StringVar(&cfg.ListFile, "l", cfg.ListFile, "File containing target URLs")
	fs.BoolVar(&cfg.Stdin, "stdin", cfg.Stdin, "Read targets from stdin")
	fs.IntVar(&cfg.MaxTargets, "max-urls", cfg.MaxTargets, "Maximum number of targets (0 = all)")

	// === PAYLOADS ===
	fs.StringVar(&cfg.PayloadFile, "p", cfg.PayloadFile, "Payload file, one per line (default: bundled list)")
	fs.StringVar(&cfg.SmokeFile, "smoke-file", cfg.SmokeFile, "Dedicated smoke payload file")
	fs.IntVar(&cfg.SmokeCount, "smoke", cfg.SmokeCount, "Smoke payloads taken from the head of the list")
	fs.BoolVar(&cfg.NoFull, "no-full", cfg.NoFull, "Run the smoke stage only")

	// === EXECUTION ===
	fs.IntVar(&cfg.Concurrency, "c", cfg.Concurrency, "Candidates driven concurrently")
	fs.DurationVar(&cfg.PerHostInterval, "host-interval", cfg.PerHostInterval, "Minimum spacing between requests to one host")
	fs.IntVar(&cfg.RPS, "rps", cfg.RPS, "Global requests per second (0 = unlimited)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout")
	fs.DurationVar(&cfg.StagePause, "stage-pause", cfg.StagePause, "Pause between a smoke hit and the full stage")
	fs.IntVar(&cfg.MaxHostErrors, "max-host-errors", cfg.MaxHostErrors, "Skip a host after N consecutive network errors (0 = never)")
	fs.Int64Var(&cfg.MaxBody, "max-body", cfg.MaxBody, "Maximum response bytes read")

	// === OUTPUT ===
	fs.StringVar(&cfg.OutputDir, "o", cfg.OutputDir, "Output directory for evidence and the hit list")
	fs.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "Evidence files written per flush")
	fs.StringVar(&cfg.JSONLFile, "jsonl", cfg.JSONLFile, "Stream events as JSON lines to this file")
	fs.StringVar(&cfg.SummaryFile, "summary", cfg.SummaryFile, "Write a rendered summary to this file")
	fs.StringVar(&cfg.SummaryTemplate, "summary-template", cfg.SummaryTemplate, "Go template for -summary")
	fs.BoolVar(&cfg.ShowPayload, "show-payload", cfg.ShowPayload, "Print the payload next to each finding")

	// === NETWORK ===
	fs.Var(&cfg.Proxies, "proxy", "Proxy URL(s): http, https, socks5, socks5h")
	fs.StringVar(&cfg.ProxyFile, "proxy-file", cfg.ProxyFile, "File of proxy URLs, rotated per request")
	fs.BoolVar(&cfg.Insecure, "k", cfg.Insecure, "Skip TLS certificate verification")
	fs.StringVar(&cfg.TLSProfile, "tls-profile", cfg.TLSProfile, "TLS fingerprint: "+strings.Join(httpclient.Profiles(), ", "))
	fs.StringVar(&cfg.UserAgent, "ua", cfg.UserAgent, "User-Agent header")

	// === VERIFICATION ===
	fs.BoolVar(&cfg.Verify, "verify", cfg.Verify, "Confirm findings in headless Chrome")
	fs.Float64Var(&cfg.VerifyRPS, "verify-rps", cfg.VerifyRPS, "Pages opened per second when verifying")
	fs.DurationVar(&cfg.VerifyTimeout, "verify-timeout", cfg.VerifyTimeout, "Page load timeout when verifying")
	fs.StringVar(&cfg.ChromePath, "chrome", cfg.ChromePath, "Chrome binary (default: auto-detect)")

	// === TELEMETRY ===
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Serve Prometheus metrics on this address")
	fs.StringVar(&cfg.OTelEndpoint, "otel", cfg.OTelEndpoint, "Export traces to this OTLP gRPC endpoint")
	fs.BoolVar(&cfg.OTelInsecure, "otel-insecure", cfg.OTelInsecure, "Disable TLS to the OTLP endpoint")

	// === DISPLAY ===
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable colored output")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.BoolVar(&cfg.Silent, "silent", cfg.Silent, "Only print findings and errors")

	return fs
}

// Validate checks the resolved configuration.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 && c.ListFile == "" && !c.Stdin {
		return fmt.Errorf("%w: target (use -u, -l or -stdin)", ErrMissingRequired)
	}

	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
		}
	}
	check(c.Concurrency >= 1 && c.Concurrency <= defaults.ConcurrencyMax,
		"concurrency must be between 1 and %d, got %d", defaults.ConcurrencyMax, c.Concurrency)
	check(c.RPS >= 0, "rps must not be negative, got %d", c.RPS)
	check(c.PerHostInterval >= 0, "host-interval must not be negative, got %s", c.PerHostInterval)
	check(c.Timeout > 0, "timeout must be positive, got %s", c.Timeout)
	check(c.StagePause >= 0, "stage-pause must not be negative, got %s", c.StagePause)
	check(c.SmokeCount >= 0, "smoke must not be negative, got %d", c.SmokeCount)
	check(c.MaxTargets >= 0, "max-urls must not be negative, got %d", c.MaxTargets)
	check(c.MaxHostErrors >= 0, "max-host-errors must not be negative, got %d", c.MaxHostErrors)
	check(c.MaxBody > 0, "max-body must be positive, got %d", c.MaxBody)
	check(c.BatchSize >= 1, "batch must be at least 1, got %d", c.BatchSize)
	check(slices.Contains(httpclient.Profiles(), strings.ToLower(c.TLSProfile)),
		"unknown tls-profile %q", c.TLSProfile)
	check(!(c.Verbose && c.Silent), "-v and -silent are mutually exclusive")
	check(c.SummaryTemplate == "" || c.SummaryFile != "", "summary-template requires -summary")
	if c.Verify {
		check(c.VerifyRPS > 0, "verify-rps must be positive, got %g", c.VerifyRPS)
		check(c.VerifyTimeout > 0, "verify-timeout must be positive, got %s", c.VerifyTimeout)
	}
	return errors.Join(errs...)
}
