package httpclient

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Supported proxy schemes. socks4 is absent because x/net/proxy only
// speaks SOCKS5.
var supportedProxySchemes = map[string]bool{
	"http":    true,
	"https":   true,
	"socks5":  true,
	"socks5h": true, // SOCKS5 with remote DNS resolution
}

// ProxyConfig holds parsed proxy configuration
type ProxyConfig struct {
	URL      *url.URL
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
	IsSOCKS  bool
}

// ParseProxyURL validates and parses a proxy URL string.
// Returns nil, nil if proxyURL is empty (no proxy configured).
// A bare host:port is treated as http.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) {
	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL == "" {
		return nil, nil
	}
	if !strings.Contains(proxyURL, "://") {
		proxyURL = "http://" + proxyURL
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !supportedProxySchemes[scheme] {
		return nil, fmt.Errorf("%w: %q (supported: http, https, socks5, socks5h)", ErrProxyScheme, scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrProxyURL, proxyURL)
	}
	port := parsed.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "8080"
		case "https":
			port = "8443"
		default:
			port = "1080"
		}
	}

	cfg := &ProxyConfig{
		URL:     parsed,
		Scheme:  scheme,
		Host:    host,
		Port:    port,
		IsSOCKS: strings.HasPrefix(scheme, "socks"),
	}
	if parsed.User != nil {
		cfg.Username = parsed.User.Username()
		cfg.Password, _ = parsed.User.Password()
	}
	return cfg, nil
}

// Address returns the proxy address in host:port format
func (p *ProxyConfig) Address() string {
	if p == nil {
		return ""
	}
	return net.JoinHostPort(p.Host, p.Port)
}

// ContextDialer is an interface for dialers that support context
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// timeoutDialer bounds a proxy.Dialer that may not honour contexts itself.
type timeoutDialer struct {
	dialer  proxy.Dialer
	timeout time.Duration
}

func (t *timeoutDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if cd, ok := t.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := t.dialer.Dial(network, address)
		select {
		case ch <- result{conn, err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("proxy dial: %w", ctx.Err())
	case r := <-ch:
		return r.conn, r.err
	}
}

// CreateSOCKSDialer creates a SOCKS5 dialer from config. For socks5h the
// target hostname is passed through unresolved so DNS happens proxy-side.
func CreateSOCKSDialer(config *ProxyConfig, timeout time.Duration) (ContextDialer, error) {
	if config == nil || !config.IsSOCKS {
		return nil, fmt.Errorf("%w: not a SOCKS proxy", ErrProxyScheme)
	}

	u := &url.URL{Scheme: "socks5", Host: config.Address()}
	if config.Username != "" {
		u.User = url.UserPassword(config.Username, config.Password)
	}

	d, err := proxy.FromURL(u, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProxyScheme, err)
	}
	return &timeoutDialer{dialer: d, timeout: timeout}, nil
}

// LoadProxyFile reads one proxy URL per line, skipping blanks and "#"
// comments. Entries are validated with ParseProxyURL.
func LoadProxyFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proxy file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if _, err := ParseProxyURL(s); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read proxy file: %w", err)
	}
	return out, nil
}
