package ai

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Gate enforces a minimum interval between consecutive model calls across
// every caller that shares it. One Gate is created at process start and
// passed by reference to all clients.
type Gate struct {
	lim *rate.Limiter
}

// NewGate creates a gate. interval <= 0 disables gating.
func NewGate(interval time.Duration) *Gate {
	if interval <= 0 {
		return &Gate{lim: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Gate{lim: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the caller may issue the next call.
func (g *Gate) Wait(ctx context.Context) error {
	if g == nil {
		return nil
	}
	return g.lim.Wait(ctx)
}
