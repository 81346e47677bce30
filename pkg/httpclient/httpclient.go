// Package httpclient builds the HTTP clients probes are sent through.
// Clients pool connections, skip certificate verification by default, never
// follow redirects, and can dial through an HTTP or SOCKS proxy and present
// a browser-like TLS fingerprint.
package httpclient

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/zerofox/zerofox/pkg/duration"
)

// Config holds HTTP client configuration options.
type Config struct {
	// Timeout is the total request timeout including body read
	Timeout time.Duration

	// InsecureSkipVerify skips TLS certificate verification
	InsecureSkipVerify bool

	// Proxy is an http, https, socks5 or socks5h proxy URL (optional)
	Proxy string

	// TLSProfile selects the ClientHello fingerprint ("", "go", "chrome",
	// "firefox", "safari", "random")
	TLSProfile string

	// UserAgent is set on requests that carry none
	UserAgent string

	// MaxIdleConns is the maximum number of idle connections across all hosts
	MaxIdleConns int

	// MaxConnsPerHost is the maximum connections per host
	MaxConnsPerHost int

	// IdleConnTimeout is how long idle connections stay in pool
	IdleConnTimeout time.Duration

	// DialTimeout is the timeout for establishing connections
	DialTimeout time.Duration

	// TLSHandshakeTimeout is the timeout for TLS handshake
	TLSHandshakeTimeout time.Duration
}

// DefaultConfig returns defaults tuned for many short probes.
func DefaultConfig() Config {
	return Config{
		Timeout:             duration.ProbeTimeout,
		InsecureSkipVerify:  true,
		MaxIdleConns:        500,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     duration.IdleConn,
		DialTimeout:         duration.DialTimeout,
		TLSHandshakeTimeout: duration.TLSHandshake,
	}
}

func (cfg *Config) applyDefaults() {
	d := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = d.MaxIdleConns
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = d.MaxConnsPerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = d.IdleConnTimeout
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = d.DialTimeout
	}
	if cfg.TLSHandshakeTimeout == 0 {
		cfg.TLSHandshakeTimeout = d.TLSHandshakeTimeout
	}
}

// New creates an HTTP client with the given configuration. It fails only
// on an unparsable proxy or an unknown TLS profile.
func New(cfg Config) (*http.Client, error) {
	cfg.applyDefaults()

	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,

		DialContext: dialer.DialContext,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}

	pc, err := ParseProxyURL(cfg.Proxy)
	if err != nil {
		return nil, err
	}
	switch {
	case pc == nil:
	case pc.IsSOCKS:
		d, err := CreateSOCKSDialer(pc, cfg.DialTimeout)
		if err != nil {
			return nil, err
		}
		transport.DialContext = d.DialContext
	default:
		transport.Proxy = http.ProxyURL(pc.URL)
	}

	if profile := strings.ToLower(cfg.TLSProfile); profile != "" && profile != ProfileGo {
		hello, err := helloFor(cfg.TLSProfile)
		if err != nil {
			return nil, err
		}
		transport.DialTLSContext = utlsDialer(transport.DialContext, hello, cfg.InsecureSkipVerify)
		// uTLS connections negotiate HTTP/1.1 only; see utlsDialer.
		transport.ForceAttemptHTTP2 = false
	}

	var rt http.RoundTripper = transport
	if cfg.UserAgent != "" {
		rt = &userAgentTransport{base: transport, userAgent: cfg.UserAgent}
	}

	return &http.Client{
		Transport: rt,
		Timeout:   cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// The reflection check inspects the first response only.
			return http.ErrUseLastResponse
		},
	}, nil
}

// MustNew is New for configurations known to be valid.
func MustNew(cfg Config) *http.Client {
	c, err := New(cfg)
	if err != nil {
		panic(fmt.Sprintf("httpclient: %v", err))
	}
	return c
}

// userAgentTransport sets a User-Agent on requests that carry none.
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
