// Package hosterrors tracks hosts that keep failing at the network level so
// a scan can stop spending rate budget on them.
//
// Usage:
//
//	tr := hosterrors.New(5, duration.HostErrorExpiry)
//	if tr.Dead(host) {
//	    return // treat as no response
//	}
//	if err := do(req); hosterrors.IsNetworkError(err) {
//	    tr.MarkError(host)
//	} else {
//	    tr.MarkSuccess(host)
//	}
package hosterrors

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type hostState struct {
	count  int
	deadAt time.Time
}

// Tracker counts consecutive network failures per host. A host is dead once
// it reaches the threshold and stays dead until expiry passes. A zero
// threshold disables tracking entirely.
type Tracker struct {
	maxErrors int
	expiry    time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState

	skipped atomic.Int64
}

// New creates a tracker.
func New(maxErrors int, expiry time.Duration) *Tracker {
	return &Tracker{
		maxErrors: maxErrors,
		expiry:    expiry,
		hosts:     make(map[string]*hostState),
	}
}

// Enabled reports whether tracking is active.
func (t *Tracker) Enabled() bool { return t != nil && t.maxErrors > 0 }

// MarkError records a network failure. It returns true if the host is now
// dead.
func (t *Tracker) MarkError(host string) bool {
	if !t.Enabled() {
		return false
	}
	host = normalizeHost(host)
	if host == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.hosts[host]
	if !ok {
		st = &hostState{}
		t.hosts[host] = st
	}
	st.count++
	if st.count >= t.maxErrors && st.deadAt.IsZero() {
		st.deadAt = time.Now()
	}
	return !st.deadAt.IsZero()
}

// MarkSuccess resets the failure count for host.
func (t *Tracker) MarkSuccess(host string) {
	if !t.Enabled() {
		return
	}
	host = normalizeHost(host)
	t.mu.Lock()
	delete(t.hosts, host)
	t.mu.Unlock()
}

// Dead reports whether requests to host should be skipped. Expired entries
// are revived.
func (t *Tracker) Dead(host string) bool {
	if !t.Enabled() {
		return false
	}
	host = normalizeHost(host)

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.hosts[host]
	if !ok || st.deadAt.IsZero() {
		return false
	}
	if t.expiry > 0 && time.Since(st.deadAt) > t.expiry {
		delete(t.hosts, host)
		return false
	}
	t.skipped.Add(1)
	return true
}

// Skipped returns how many Dead checks returned true.
func (t *Tracker) Skipped() int64 {
	if t == nil {
		return 0
	}
	return t.skipped.Load()
}

// DeadHosts returns the number of hosts currently marked dead.
func (t *Tracker) DeadHosts() int {
	if !t.Enabled() {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, st := range t.hosts {
		if !st.deadAt.IsZero() {
			n++
		}
	}
	return n
}

// normalizeHost lowercases a host or URL and strips any port.
func normalizeHost(input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if strings.Contains(input, "://") {
		if u, err := url.Parse(input); err == nil && u.Host != "" {
			input = u.Host
		}
	}
	if host, _, err := net.SplitHostPort(input); err == nil {
		input = host
	}
	return strings.ToLower(input)
}

// IsNetworkError reports whether err indicates the host itself is
// unreachable, as opposed to a slow or cancelled request. Timeouts of our
// own context do not count.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"connection refused",
		"no such host",
		"no route to host",
		"network is unreachable",
		"connection reset",
	} {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}
