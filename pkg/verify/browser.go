package verify

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/zerofox/zerofox/pkg/duration"
)

// BrowserConfig configures a headless Chrome verifier.
type BrowserConfig struct {
	// ExecPath is the Chrome binary; empty searches PATH and well-known locations
	ExecPath string

	// Headful shows the browser window, for debugging
	Headful bool

	// Proxy is passed to Chrome as --proxy-server
	Proxy string

	// InsecureTLS ignores certificate errors
	InsecureTLS bool

	UserAgent string

	// Timeout bounds one page load
	Timeout time.Duration

	// Settle is how long scripts may run after the page loads
	Settle time.Duration

	Logger *slog.Logger
}

// Browser verifies reflections by loading the probe URL in headless Chrome
// and treating any JavaScript dialog (alert, confirm, prompt) as execution.
// The browser process is shared; each Verify opens and closes its own tab.
type Browser struct {
	cfg    BrowserConfig
	logger *slog.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	closeOnce sync.Once
	closed    atomic.Bool

	pages   atomic.Int64
	dialogs atomic.Int64
}

// BrowserStats holds verifier counters.
type BrowserStats struct {
	Pages   int64
	Dialogs int64
}

var browserNames = []string{"chrome", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"}

var browserPaths = []string{
	`C:\Program Files\Google\Chrome\Application\chrome.exe`,
	`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
	`/usr/bin/google-chrome`,
	`/usr/bin/chromium-browser`,
	`/usr/bin/chromium`,
	`/snap/bin/chromium`,
	`/Applications/Google Chrome.app/Contents/MacOS/Google Chrome`,
	`/Applications/Chromium.app/Contents/MacOS/Chromium`,
}

// FindChrome returns the path of a local Chrome or Chromium binary.
func FindChrome() (string, error) {
	for _, name := range browserNames {
		if path, err := exec.LookPath(name); err == nil && path != "" {
			return path, nil
		}
	}
	for _, path := range browserPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", ErrNoBrowser
}

// NewBrowser launches Chrome and returns a ready verifier. The browser lives
// until Close, independent of ctx other than for the launch itself.
func NewBrowser(ctx context.Context, cfg BrowserConfig) (*Browser, error) {
	if cfg.ExecPath == "" {
		path, err := FindChrome()
		if err != nil {
			return nil, err
		}
		cfg.ExecPath = path
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.VerifyTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(cfg.ExecPath),
		chromedp.Flag("headless", !cfg.Headful),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-background-timer-throttling", true),
	)
	if cfg.InsecureTLS {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.Proxy != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}

	launched := make(chan error, 1)
	go func() { launched <- chromedp.Run(browserCtx) }()
	select {
	case err := <-launched:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("%w: %v", ErrLaunch, err)
		}
	case <-ctx.Done():
		b.Close()
		return nil, fmt.Errorf("%w: %v", ErrLaunch, ctx.Err())
	}

	logger.Debug("browser launched", slog.String("exec_path", cfg.ExecPath))
	return b, nil
}

// Verify loads probeURL in a fresh tab and reports whether a dialog opened.
// Dialogs are accepted as they appear so the page keeps loading.
func (b *Browser) Verify(ctx context.Context, probeURL, payload string) (bool, error) {
	if b.closed.Load() {
		return false, ErrClosed
	}
	b.pages.Add(1)

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()
	tabCtx, cancel := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var fired atomic.Bool
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		e, ok := ev.(*page.EventJavascriptDialogOpening)
		if !ok {
			return
		}
		fired.Store(true)
		b.logger.Debug("dialog opened",
			slog.String("probe_url", probeURL),
			slog.String("type", string(e.Type)),
			slog.String("message", e.Message))
		go func() {
			_ = chromedp.Run(tabCtx, page.HandleJavaScriptDialog(true))
		}()
	})

	err := chromedp.Run(tabCtx,
		chromedp.Navigate(probeURL),
		chromedp.Sleep(b.cfg.Settle),
	)
	if fired.Load() {
		b.dialogs.Add(1)
		return true, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("verify: load %s: %w", probeURL, err)
	}
	return false, nil
}

// Stats returns a snapshot of verifier counters.
func (b *Browser) Stats() BrowserStats {
	return BrowserStats{Pages: b.pages.Load(), Dialogs: b.dialogs.Load()}
}

// Close shuts the browser down, force-killing it if a graceful shutdown
// does not finish within duration.BrowserShutdown.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)

		var proc *os.Process
		if c := chromedp.FromContext(b.browserCtx); c != nil && c.Browser != nil {
			proc = c.Browser.Process()
		}

		done := make(chan struct{})
		go func() {
			b.browserCancel()
			b.allocCancel()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(duration.BrowserShutdown):
			killProcessTree(proc)
			b.logger.Warn("browser shutdown timed out, killed process tree")
		}
	})
	return nil
}
