package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/zerofox/zerofox/pkg/config"
	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/hosterrors"
	"github.com/zerofox/zerofox/pkg/httpclient"
	"github.com/zerofox/zerofox/pkg/input"
	"github.com/zerofox/zerofox/pkg/payloads"
	"github.com/zerofox/zerofox/pkg/probe"
	"github.com/zerofox/zerofox/pkg/report"
	"github.com/zerofox/zerofox/pkg/runner"
	"github.com/zerofox/zerofox/pkg/ui"
	"github.com/zerofox/zerofox/pkg/verify"
)

// =============================================================================
// SCAN COMMAND - two-stage reflected XSS probing
// =============================================================================

func runScan(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return defaults.ExitOK
		}
		if errors.Is(err, config.ErrInvalidConfig) {
			fmt.Fprintln(stderr, err)
		}
		return defaults.ExitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return defaults.ExitUsage
	}

	ui.SetOutput(stderr)
	ui.SetNoColor(cfg.NoColor)
	ui.SetSilent(cfg.Silent)
	logger := newLogger(cfg, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := scan(ctx, cfg, stdin, stdout, logger)
	if err != nil {
		ui.PrintError(err.Error())
		return defaults.ExitError
	}
	if res.Canceled {
		return defaults.ExitCanceled
	}
	return defaults.ExitOK
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case cfg.Verbose:
		level = slog.LevelDebug
	case cfg.Silent:
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// scan wires every component from cfg and runs one scan.
func scan(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer, logger *slog.Logger) (*runner.Result, error) {
	ui.PrintBanner()

	src := &input.TargetSource{
		URLs:     cfg.URLs,
		ListFile: cfg.ListFile,
		Stdin:    cfg.Stdin,
		Limit:    cfg.MaxTargets,
	}
	if cfg.Stdin && stdin != os.Stdin {
		src.Reader = stdin
	}
	targets, err := src.RequireTargets()
	if err != nil {
		return nil, err
	}

	set, err := payloads.NewSet(payloads.Options{
		FullFile:   cfg.PayloadFile,
		SmokeFile:  cfg.SmokeFile,
		SmokeCount: cfg.SmokeCount,
		NoFull:     cfg.NoFull,
	})
	if err != nil {
		return nil, err
	}

	proxies := append([]string(nil), cfg.Proxies...)
	if cfg.ProxyFile != "" {
		more, err := httpclient.LoadProxyFile(cfg.ProxyFile)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, more...)
	}

	base := httpclient.DefaultConfig()
	base.Timeout = cfg.Timeout
	base.InsecureSkipVerify = cfg.Insecure
	base.TLSProfile = cfg.TLSProfile
	base.UserAgent = cfg.UserAgent
	clients, err := httpclient.NewRotator(base, proxies)
	if err != nil {
		return nil, err
	}
	defer clients.CloseIdleConnections()

	hosts := hosterrors.New(cfg.MaxHostErrors, duration.HostErrorExpiry)
	prober := probe.NewHTTP(probe.Config{
		Clients: clients,
		Timeout: cfg.Timeout,
		MaxBody: cfg.MaxBody,
		Hosts:   hosts,
		Logger:  logger,
	})

	reporters, err := buildReporters(cfg, stdout, logger)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reporters.Close(); err != nil {
			logger.Warn("reporter close failed", slog.String("error", err.Error()))
		}
	}()

	var verifier verify.Verifier
	if cfg.Verify {
		browser, err := verify.NewBrowser(ctx, verify.BrowserConfig{
			ExecPath:    cfg.ChromePath,
			InsecureTLS: cfg.Insecure,
			UserAgent:   cfg.UserAgent,
			Timeout:     cfg.VerifyTimeout,
			Settle:      duration.VerifySettle,
			Logger:      logger,
		})
		if err != nil {
			return nil, err
		}
		defer browser.Close()
		verifier = verify.NewLimited(browser, cfg.VerifyRPS)
	}

	ui.PrintConfig(map[string]string{
		"Targets":       strconv.Itoa(len(targets)),
		"Payloads":      fmt.Sprintf("%d smoke / %d full", len(set.Smoke), len(set.Full)),
		"Concurrency":   strconv.Itoa(cfg.Concurrency),
		"Host interval": cfg.PerHostInterval.String(),
		"RPS":           rpsLabel(cfg.RPS),
		"Proxies":       strconv.Itoa(len(proxies)),
		"TLS profile":   cfg.TLSProfile,
		"Output":        cfg.OutputDir,
	})

	rcfg := runner.Config{
		Concurrency:     cfg.Concurrency,
		PerHostInterval: cfg.PerHostInterval,
		RPS:             cfg.RPS,
		StagePause:      cfg.StagePause,
		BatchSize:       cfg.BatchSize,
		OutputDir:       cfg.OutputDir,
		Prober:          prober,
		Verifier:        verifier,
		Hooks:           reporters,
		Logger:          logger,
	}
	r, err := runner.New(rcfg)
	if err != nil {
		return nil, err
	}

	res, err := r.Run(ctx, targets, set)
	if err != nil {
		return nil, err
	}
	if n := hosts.DeadHosts(); n > 0 {
		ui.PrintWarning(fmt.Sprintf("%d hosts skipped after repeated network errors (%d probes)", n, hosts.Skipped()))
	}
	return res, nil
}

// buildReporters assembles the reporters selected in cfg. The console
// reporter is always present.
func buildReporters(cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*report.Dispatcher, error) {
	d := report.NewDispatcher(logger, report.NewConsole(report.ConsoleOptions{
		W:           stdout,
		ShowPayload: cfg.ShowPayload,
	}))

	fail := func(err error) (*report.Dispatcher, error) {
		_ = d.Close()
		return nil, err
	}

	if cfg.JSONLFile != "" {
		j, err := report.OpenJSONL(cfg.JSONLFile, logger)
		if err != nil {
			return fail(err)
		}
		d.Register(j)
	}
	if cfg.SummaryFile != "" {
		s, err := report.OpenSummary(cfg.SummaryFile, report.SummaryOptions{
			TemplatePath: cfg.SummaryTemplate,
			Logger:       logger,
		})
		if err != nil {
			return fail(err)
		}
		d.Register(s)
	}
	if cfg.MetricsAddr != "" {
		p, err := report.NewPrometheus(report.PrometheusOptions{Addr: cfg.MetricsAddr, Logger: logger})
		if err != nil {
			return fail(err)
		}
		d.Register(p)
	}
	if cfg.OTelEndpoint != "" {
		o, err := report.NewOTel(report.OTelOptions{
			Endpoint: cfg.OTelEndpoint,
			Insecure: cfg.OTelInsecure,
			Logger:   logger,
		})
		if err != nil {
			return fail(err)
		}
		d.Register(o)
	}
	return d, nil
}

func rpsLabel(rps int) string {
	if rps <= 0 {
		return "unlimited"
	}
	return strconv.Itoa(rps)
}
