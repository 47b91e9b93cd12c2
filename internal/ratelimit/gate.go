// Package ratelimit provides the per-provider admission gate: a rolling-window
// request limiter stacked on a fixed concurrency cap.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Gate admits provider requests only when both tiers allow: the token bucket
// bounds requests per rolling window, the slot channel bounds simultaneous
// in-flight requests.
type Gate struct {
	name    string
	limiter *rate.Limiter
	slots   chan struct{}
}

// New builds a gate admitting requestsPerWindow requests per window with at
// most maxConcurrent in flight. Non-positive values disable the corresponding
// tier.
func New(name string, requestsPerWindow int, window time.Duration, maxConcurrent int) *Gate {
	g := &Gate{name: name}
	if requestsPerWindow > 0 && window > 0 {
		g.limiter = rate.NewLimiter(rate.Every(window/time.Duration(requestsPerWindow)), requestsPerWindow)
	}
	if maxConcurrent > 0 {
		g.slots = make(chan struct{}, maxConcurrent)
	}
	return g
}

// Acquire blocks until the caller may issue one request, or the context is
// done. On success the caller must Release exactly once.
func (g *Gate) Acquire(ctx context.Context) error {
	if g.slots != nil {
		select {
		case g.slots <- struct{}{}:
		case <-ctx.Done():
			return fmt.Errorf("ratelimit.Acquire: %s: %w", g.name, ctx.Err())
		}
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.release()
			return fmt.Errorf("ratelimit.Acquire: %s: %w", g.name, err)
		}
	}
	return nil
}

// Release frees the concurrency slot taken by a successful Acquire.
func (g *Gate) Release() {
	g.release()
}

func (g *Gate) release() {
	if g.slots == nil {
		return
	}
	select {
	case <-g.slots:
	default:
	}
}

// InFlight returns the number of currently held slots.
func (g *Gate) InFlight() int {
	if g.slots == nil {
		return 0
	}
	return len(g.slots)
}
