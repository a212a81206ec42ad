// Package retry wraps cenkalti/backoff with the player's exponential policy:
// min(base * 2^attempt, maxDelay) plus up to 25% random jitter.
package retry

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// JitterFraction is the upper bound of the random extra delay, relative to the computed delay
const JitterFraction = 0.25

// Policy describes one retry configuration
type Policy struct {
	Base        time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultPolicy is 2s base, 60s cap, 5 attempts
var DefaultPolicy = Policy{Base: 2 * time.Second, MaxDelay: 60 * time.Second, MaxAttempts: 5}

// Delay returns the wait before retry number attempt (0-based). jitter is a
// sample in [0, 1) scaled to at most JitterFraction of the capped delay.
func Delay(p Policy, attempt int, jitter float64) time.Duration {
	d := p.Base
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter >= 1 {
		jitter = 0.999999
	}
	return d + time.Duration(float64(d)*JitterFraction*jitter)
}

// BackOff implements backoff.BackOff with the player's formula
type BackOff struct {
	policy  Policy
	attempt int
	rand    func() float64
}

// NewBackOff creates a BackOff for p. A nil rand uses math/rand/v2.
func NewBackOff(p Policy, rand func() float64) *BackOff {
	if rand == nil {
		rand = defaultRand
	}
	return &BackOff{policy: p, rand: rand}
}

// NextBackOff returns the next wait; the attempt cap is enforced by the caller
func (b *BackOff) NextBackOff() time.Duration {
	d := Delay(b.policy, b.attempt, b.rand())
	b.attempt++
	return d
}

// Reset restarts the sequence from the base delay
func (b *BackOff) Reset() { b.attempt = 0 }

func defaultRand() float64 { return rand.Float64() }

// Retrier runs operations under a Policy
type Retrier struct {
	logger *zap.Logger
	policy Policy
	rand   func() float64
}

// New creates a Retrier
func New(logger *zap.Logger, p Policy) *Retrier {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	return &Retrier{logger: logger, policy: p, rand: defaultRand}
}

// Policy returns the configured policy
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op up to MaxAttempts times, waiting between attempts. The last error is
// returned once attempts are exhausted. Errors wrapped with backoff.Permanent stop
// immediately; a cancelled ctx aborts the wait.
func Do[T any](ctx context.Context, r *Retrier, name string, op func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0
	operation := func() (T, error) {
		attempt++
		return op(ctx)
	}

	notify := func(err error, next time.Duration) {
		r.logger.Warn("Operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", r.policy.MaxAttempts),
			zap.Duration("nextDelay", next),
			zap.Error(err))
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(NewBackOff(r.policy, r.rand)),
		backoff.WithMaxTries(uint(r.policy.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
}
