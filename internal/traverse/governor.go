package traverse

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Default pacing between activations.
const (
	DefaultMinDelay = 2 * time.Second
	DefaultMaxDelay = 5 * time.Second
)

// RateGovernor waits a uniformly random duration in [min, max] before an
// activation so that the remote service sees human-like pacing.
type RateGovernor struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// GovernorOption configures a RateGovernor.
type GovernorOption func(*RateGovernor)

// WithRandSource replaces the random source, mainly for tests.
func WithRandSource(src rand.Source) GovernorOption {
	return func(g *RateGovernor) {
		g.rng = rand.New(src)
	}
}

// NewRateGovernor returns a governor for the given bounds. Swapped bounds
// are reordered and negative bounds are treated as zero.
func NewRateGovernor(minDelay, maxDelay time.Duration, opts ...GovernorOption) *RateGovernor {
	minDelay = max(minDelay, 0)
	maxDelay = max(maxDelay, 0)
	if maxDelay < minDelay {
		minDelay, maxDelay = maxDelay, minDelay
	}

	g := &RateGovernor{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x7265657761)), //nolint:gosec // pacing jitter, not security
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bounds returns the configured delay range.
func (g *RateGovernor) Bounds() (time.Duration, time.Duration) {
	return g.minDelay, g.maxDelay
}

// Next draws the next delay without waiting.
func (g *RateGovernor) Next() time.Duration {
	span := g.maxDelay - g.minDelay
	if span <= 0 {
		return g.minDelay
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.minDelay + time.Duration(g.rng.Int64N(int64(span)+1))
}

// Wait blocks for the next delay and returns it. It returns early with the
// context error when ctx is done.
func (g *RateGovernor) Wait(ctx context.Context) (time.Duration, error) {
	d := g.Next()
	if err := sleepContext(ctx, d); err != nil {
		return 0, err
	}
	return d, nil
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
