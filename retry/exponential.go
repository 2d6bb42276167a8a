package retry

import (
	"context"
	"math"
	"time"
)

// ExponentialPolicy multiplies the interval by the base after every retry until it reaches the
// maximum.
type ExponentialPolicy struct {
	schedule
	base        float64
	minInterval time.Duration
	maxInterval time.Duration
	maxReached  bool
}

var _ Policy = (*ExponentialPolicy)(nil)

func Exponential(attempts int, minInterval, maxInterval time.Duration) *ExponentialPolicy {
	s := newSchedule(attempts)
	if minInterval <= 0 {
		panic("minInterval can't be <= 0")
	}
	if minInterval >= maxInterval {
		panic("minInterval can't be >= maxInterval")
	}

	return &ExponentialPolicy{
		schedule:    s,
		base:        2,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}
}

func (r *ExponentialPolicy) WithBase(base float64) *ExponentialPolicy {
	if base <= 1 {
		panic("base can't be <= 1")
	}
	r.base = base
	return r
}

func (r *ExponentialPolicy) WithJitter(jitter float64) *ExponentialPolicy {
	r.setJitter(jitter)
	return r
}

func (r *ExponentialPolicy) WithCooldown(cooldown time.Duration) *ExponentialPolicy {
	r.setCooldown(cooldown)
	return r
}

func (r *ExponentialPolicy) Attempt(ctx context.Context) bool {
	return r.attempt(ctx, func(n int) time.Duration {
		if r.maxReached {
			return r.maxInterval
		}
		// Compared as floats so a large n can't overflow the duration.
		interval := float64(r.minInterval) * math.Pow(r.base, float64(n))
		if interval >= float64(r.maxInterval) {
			r.maxReached = true
			return r.maxInterval
		}
		return time.Duration(interval)
	})
}

func (r *ExponentialPolicy) Cooldown() time.Duration {
	return r.cooldown
}

func (r *ExponentialPolicy) Derive() Policy {
	return Exponential(r.attempts, r.minInterval, r.maxInterval).
		WithBase(r.base).
		WithJitter(r.jitter).
		WithCooldown(r.cooldown)
}
