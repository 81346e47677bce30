package httpclient

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Rotator hands out clients round-robin, one per configured proxy. With no
// proxies it always returns the same direct client.
type Rotator struct {
	clients []*http.Client
	next    atomic.Uint64
}

// NewRotator builds one client per proxy from base. An empty proxies slice
// yields a single client using base.Proxy, if any.
func NewRotator(base Config, proxies []string) (*Rotator, error) {
	if len(proxies) == 0 {
		c, err := New(base)
		if err != nil {
			return nil, err
		}
		return &Rotator{clients: []*http.Client{c}}, nil
	}

	r := &Rotator{clients: make([]*http.Client, 0, len(proxies))}
	for _, p := range proxies {
		cfg := base
		cfg.Proxy = p
		c, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("proxy %q: %w", p, err)
		}
		r.clients = append(r.clients, c)
	}
	return r, nil
}

// Next returns the next client in rotation. Safe for concurrent use.
func (r *Rotator) Next() *http.Client {
	if len(r.clients) == 1 {
		return r.clients[0]
	}
	n := r.next.Add(1) - 1
	return r.clients[n%uint64(len(r.clients))]
}

// Len returns the number of clients in rotation.
func (r *Rotator) Len() int { return len(r.clients) }

// CloseIdleConnections releases pooled connections on every client.
func (r *Rotator) CloseIdleConnections() {
	for _, c := range r.clients {
		c.CloseIdleConnections()
	}
}
