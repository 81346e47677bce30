// Package ratelimit provides the two request gates every probe passes
// through: a per-host minimum spacing and a global throughput ceiling.
//
// Both gates use slot reservation. Under the gate's mutex a caller computes
// the earliest permitted instant (last grant + interval, or now if that has
// passed) and stamps it as the new last grant, then sleeps until that
// instant with the lock released. Concurrent callers therefore queue behind
// each other at exact interval spacing without holding the lock while they
// wait.
//
// Governor.Wait reserves on both timelines in one step so a delay imposed by
// the global gate never eats into the spacing owed to the host.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// slot is a single reservation timeline.
type slot struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// reserve stamps and returns the next permitted instant.
func (s *slot) reserve(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.earliest(now)
	s.last = at
	return at
}

// earliest returns the first instant not before now that honors the
// interval. The caller holds s.mu.
func (s *slot) earliest(now time.Time) time.Time {
	if s.last.IsZero() {
		return now
	}
	if next := s.last.Add(s.interval); next.After(now) {
		return next
	}
	return now
}

// sleepUntil blocks until at or until ctx is done.
func sleepUntil(ctx context.Context, at time.Time) (time.Duration, error) {
	d := time.Until(at)
	if d <= 0 {
		return 0, ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return d, nil
	}
}

// Stats holds gate counters.
type Stats struct {
	Grants  int64
	Delayed int64
	Waited  time.Duration
	Hosts   int
}

type counters struct {
	grants  atomic.Int64
	delayed atomic.Int64
	waited  atomic.Int64
}

func (c *counters) record(waited time.Duration) {
	c.grants.Add(1)
	if waited > 0 {
		c.delayed.Add(1)
		c.waited.Add(int64(waited))
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Grants:  c.grants.Load(),
		Delayed: c.delayed.Load(),
		Waited:  time.Duration(c.waited.Load()),
	}
}

// PerHostGate enforces a minimum interval between two grants for the same
// host. Hosts are tracked lazily and never evicted.
type PerHostGate struct {
	interval time.Duration

	mu    sync.RWMutex
	hosts map[string]*slot

	counters
}

// NewPerHostGate creates a gate with the given minimum spacing. A
// non-positive interval disables spacing.
func NewPerHostGate(interval time.Duration) *PerHostGate {
	return &PerHostGate{
		interval: interval,
		hosts:    make(map[string]*slot),
	}
}

// Acquire suspends the caller until a request to host is permitted.
// It returns ctx.Err() if the context ends first.
func (g *PerHostGate) Acquire(ctx context.Context, host string) error {
	if g.interval <= 0 {
		g.record(0)
		return ctx.Err()
	}
	at := g.slotFor(host).reserve(time.Now())
	waited, err := sleepUntil(ctx, at)
	if err != nil {
		return err
	}
	g.record(waited)
	return nil
}

func (g *PerHostGate) slotFor(host string) *slot {
	g.mu.RLock()
	s, ok := g.hosts[host]
	g.mu.RUnlock()
	if ok {
		return s
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok = g.hosts[host]; ok {
		return s
	}
	s = &slot{interval: g.interval}
	g.hosts[host] = s
	return s
}

// Interval returns the configured per-host spacing.
func (g *PerHostGate) Interval() time.Duration { return g.interval }

// Stats returns a snapshot of gate counters.
func (g *PerHostGate) Stats() Stats {
	st := g.snapshot()
	g.mu.RLock()
	st.Hosts = len(g.hosts)
	g.mu.RUnlock()
	return st
}

// GlobalGate enforces a minimum interval between any two grants, bounding
// aggregate throughput across all hosts.
type GlobalGate struct {
	slot slot
	counters
}

// NewGlobalGate creates a gate admitting at most rps requests per second.
// A non-positive rps disables the gate.
func NewGlobalGate(rps int) *GlobalGate {
	g := &GlobalGate{}
	if rps > 0 {
		g.slot.interval = time.Second / time.Duration(rps)
	}
	return g
}

// Acquire suspends the caller until the next global slot.
func (g *GlobalGate) Acquire(ctx context.Context) error {
	if g.slot.interval <= 0 {
		g.record(0)
		return ctx.Err()
	}
	at := g.slot.reserve(time.Now())
	waited, err := sleepUntil(ctx, at)
	if err != nil {
		return err
	}
	g.record(waited)
	return nil
}

// Interval returns the spacing derived from the configured rps.
func (g *GlobalGate) Interval() time.Duration { return g.slot.interval }

// Stats returns a snapshot of gate counters.
func (g *GlobalGate) Stats() Stats { return g.snapshot() }

// Governor bundles the two gates a prober waits on before each request.
// It is an owned value: independent scans build independent governors.
type Governor struct {
	Host   *PerHostGate
	Global *GlobalGate
}

// NewGovernor builds both gates.
func NewGovernor(perHost time.Duration, rps int) *Governor {
	return &Governor{
		Host:   NewPerHostGate(perHost),
		Global: NewGlobalGate(rps),
	}
}

// Wait suspends the caller until a request to host is permitted by both
// gates. The host slot is locked before the global slot, and the grant is the
// latest of the two earliest instants, stamped on both timelines. Spacing
// between grants for one host is therefore never shorter than the host
// interval, whatever the global gate adds. A context that is already done
// takes no slot.
func (g *Governor) Wait(ctx context.Context, host string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var hs, gs *slot
	if g.Host.interval > 0 {
		hs = g.Host.slotFor(host)
	}
	if g.Global.slot.interval > 0 {
		gs = &g.Global.slot
	}

	now := time.Now()
	at := now
	if hs != nil {
		hs.mu.Lock()
		at = hs.earliest(now)
	}
	if gs != nil {
		gs.mu.Lock()
		if next := gs.earliest(now); next.After(at) {
			at = next
		}
		gs.last = at
		gs.mu.Unlock()
	}
	if hs != nil {
		hs.last = at
		hs.mu.Unlock()
	}

	waited, err := sleepUntil(ctx, at)
	if err != nil {
		return err
	}
	g.Host.record(waited)
	g.Global.record(waited)
	return nil
}
