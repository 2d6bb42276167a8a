package retry

import (
	"context"
	"time"
)

// LinearPolicy grows the interval by a constant step until it reaches the maximum.
type LinearPolicy struct {
	schedule
	step        time.Duration
	minInterval time.Duration
	maxInterval time.Duration
}

var _ Policy = (*LinearPolicy)(nil)

// Linear creates a policy that starts waiting minInterval and reaches maxInterval on the last
// attempt. With infinite attempts the step equals minInterval unless set with [LinearPolicy.WithStep].
func Linear(attempts int, minInterval, maxInterval time.Duration) *LinearPolicy {
	s := newSchedule(attempts)
	if minInterval <= 0 {
		panic("minInterval can't be <= 0")
	}
	if minInterval >= maxInterval {
		panic("minInterval can't be >= maxInterval")
	}

	var step time.Duration
	if attempts == 0 {
		step = minInterval
	} else if attempts > 2 {
		step = (maxInterval - minInterval) / time.Duration((attempts - 2))
	}

	return &LinearPolicy{
		schedule:    s,
		step:        step,
		minInterval: minInterval,
		maxInterval: maxInterval,
	}
}

func (r *LinearPolicy) WithStep(step time.Duration) *LinearPolicy {
	if step <= 0 {
		panic("step can't be <= 0")
	}
	r.step = step
	return r
}

func (r *LinearPolicy) WithJitter(jitter float64) *LinearPolicy {
	r.setJitter(jitter)
	return r
}

func (r *LinearPolicy) WithCooldown(cooldown time.Duration) *LinearPolicy {
	r.setCooldown(cooldown)
	return r
}

func (r *LinearPolicy) Attempt(ctx context.Context) bool {
	return r.attempt(ctx, func(n int) time.Duration {
		return min(r.minInterval+r.step*time.Duration(n), r.maxInterval)
	})
}

func (r *LinearPolicy) Cooldown() time.Duration {
	return r.cooldown
}

func (r *LinearPolicy) Derive() Policy {
	return &LinearPolicy{
		schedule: schedule{
			attempts: r.attempts,
			infinite: r.infinite,
			jitter:   r.jitter,
			cooldown: r.cooldown,
		},
		step:        r.step,
		minInterval: r.minInterval,
		maxInterval: r.maxInterval,
	}
}
