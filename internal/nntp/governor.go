package nntp

import (
	"context"

	"golang.org/x/time/rate"
)

// Governor bounds aggregate transfer throughput across every worker drawing
// from the same pool. It is a token bucket: Throttle(n) blocks the caller
// for however long is needed to keep the rolling rate at or below the
// configured ceiling.
type Governor struct {
	limiter *rate.Limiter
	burst   int
}

// NewGovernor creates a governor limited to bytesPerSecond. A zero or
// negative limit disables throttling.
func NewGovernor(bytesPerSecond int) *Governor {
	if bytesPerSecond <= 0 {
		return &Governor{}
	}
	// One second of traffic as burst keeps WaitN chunks reasonable while
	// still smoothing over article-sized writes.
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSecond), bytesPerSecond),
		burst:   bytesPerSecond,
	}
}

// Throttle reserves n bytes of budget, sleeping as required. Safe for
// concurrent use; all callers share one ceiling. Returns early only when
// ctx is cancelled.
func (g *Governor) Throttle(ctx context.Context, n int) error {
	if g.limiter == nil || n <= 0 {
		return nil
	}
	for n > 0 {
		take := n
		if take > g.burst {
			take = g.burst
		}
		if err := g.limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}
