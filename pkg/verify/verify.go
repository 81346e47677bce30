// Package verify confirms textual reflections by rendering the probe URL
// and watching for script execution.
package verify

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Verifier reports whether loading probeURL executes payload.
type Verifier interface {
	Verify(ctx context.Context, probeURL, payload string) (bool, error)
}

// Func adapts a function to Verifier.
type Func func(ctx context.Context, probeURL, payload string) (bool, error)

// Verify calls fn.
func (fn Func) Verify(ctx context.Context, probeURL, payload string) (bool, error) {
	return fn(ctx, probeURL, payload)
}

// Limited throttles an underlying Verifier.
type Limited struct {
	next    Verifier
	limiter *rate.Limiter
}

// NewLimited wraps next so that at most rps verifications start per second.
// A non-positive rps disables throttling.
func NewLimited(next Verifier, rps float64) *Limited {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Verify waits for a token, then delegates.
func (l *Limited) Verify(ctx context.Context, probeURL, payload string) (bool, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("verify: throttle: %w", err)
	}
	return l.next.Verify(ctx, probeURL, payload)
}
