// Package probe sends single probe requests and decides whether a response
// reflects the payload that produced it.
package probe

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/zerofox/zerofox/pkg/defaults"
	"github.com/zerofox/zerofox/pkg/duration"
	"github.com/zerofox/zerofox/pkg/hosterrors"
	"github.com/zerofox/zerofox/pkg/iohelper"
)

// Response is the part of an HTTP response the scanner inspects.
type Response struct {
	StatusCode int
	Body       string
}

// Prober issues one request for a probe URL. A false second result means no
// usable response arrived; the reason is deliberately not surfaced.
type Prober interface {
	Probe(ctx context.Context, probeURL string) (Response, bool)
}

// ClientSource yields the client to use for the next request.
// *httpclient.Rotator satisfies it.
type ClientSource interface {
	Next() *http.Client
}

// StaticClient adapts a single client to ClientSource.
type StaticClient struct{ Client *http.Client }

// Next returns the wrapped client.
func (s StaticClient) Next() *http.Client { return s.Client }

// Config configures an HTTPProber.
type Config struct {
	Clients ClientSource

	// Timeout bounds each request including the body read
	Timeout time.Duration

	// MaxBody caps the bytes read from each response
	MaxBody int64

	// Hosts, when enabled, short-circuits probes to hosts that keep failing
	Hosts *hosterrors.Tracker

	UserAgent string
	Logger    *slog.Logger
}

// Stats holds prober counters.
type Stats struct {
	Sent    int64
	Failed  int64
	Skipped int64
}

// HTTPProber is the network Prober.
type HTTPProber struct {
	clients   ClientSource
	timeout   time.Duration
	maxBody   int64
	hosts     *hosterrors.Tracker
	userAgent string
	logger    *slog.Logger

	sent    atomic.Int64
	failed  atomic.Int64
	skipped atomic.Int64
}

// NewHTTP creates a network prober. A nil Clients uses http.DefaultClient.
func NewHTTP(cfg Config) *HTTPProber {
	if cfg.Clients == nil {
		cfg.Clients = StaticClient{Client: http.DefaultClient}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = duration.ProbeTimeout
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaults.MaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &HTTPProber{
		clients:   cfg.Clients,
		timeout:   cfg.Timeout,
		maxBody:   cfg.MaxBody,
		hosts:     cfg.Hosts,
		userAgent: cfg.UserAgent,
		logger:    cfg.Logger,
	}
}

// Probe sends a GET to probeURL. Transport failures, timeouts and
// truncated bodies all report false.
func (p *HTTPProber) Probe(ctx context.Context, probeURL string) (Response, bool) {
	host := Host(probeURL)
	if p.hosts.Dead(host) {
		p.skipped.Add(1)
		return Response{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		p.failed.Add(1)
		p.logger.Debug("probe request invalid", slog.String("probe_url", probeURL), slog.String("error", err.Error()))
		return Response{}, false
	}
	req.Header.Set("Accept", defaults.AcceptHTML)
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	p.sent.Add(1)
	resp, err := p.clients.Next().Do(req)
	if err != nil {
		p.fail(host, probeURL, err)
		return Response{}, false
	}
	defer iohelper.DrainAndClose(resp.Body)

	body, err := iohelper.ReadBody(resp.Body, p.maxBody)
	if err != nil {
		p.fail(host, probeURL, err)
		return Response{}, false
	}

	p.hosts.MarkSuccess(host)
	return Response{StatusCode: resp.StatusCode, Body: string(body)}, true
}

func (p *HTTPProber) fail(host, probeURL string, err error) {
	p.failed.Add(1)
	if hosterrors.IsNetworkError(err) && p.hosts.MarkError(host) {
		p.logger.Warn("host marked unreachable", slog.String("host", host))
	}
	p.logger.Debug("probe failed", slog.String("probe_url", probeURL), slog.String("error", err.Error()))
}

// Stats returns a snapshot of prober counters.
func (p *HTTPProber) Stats() Stats {
	return Stats{
		Sent:    p.sent.Load(),
		Failed:  p.failed.Load(),
		Skipped: p.skipped.Load(),
	}
}

// Host returns the host[:port] of rawURL, or a best-effort guess when the
// URL does not parse.
func Host(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		return u.Host
	}
	s := rawURL
	if _, rest, ok := strings.Cut(s, "://"); ok {
		s = rest
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	return s
}

// Reflects reports whether body contains payload verbatim or in its
// percent-decoded form. An empty payload never reflects.
func Reflects(payload, body string) bool {
	if payload == "" {
		return false
	}
	if strings.Contains(body, payload) {
		return true
	}
	if dec := unescapeLenient(payload); dec != payload && dec != "" {
		return strings.Contains(body, dec)
	}
	return false
}

// unescapeLenient decodes a query-escaped string. '+' becomes a space and
// every valid %XX sequence becomes its byte; a '%' that does not start a
// valid sequence is kept as is.
func unescapeLenient(s string) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '+':
			b.WriteByte(' ')
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
