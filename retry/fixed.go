package retry

import (
	"context"
	"time"
)

// FixedPolicy waits the same interval before every retry.
type FixedPolicy struct {
	schedule
	interval time.Duration
}

var _ Policy = (*FixedPolicy)(nil)

// Fixed creates a policy that allows the given number of attempts with the given interval between
// them. Zero attempts means there is no limit. Zero interval retries immediately.
func Fixed(attempts int, interval time.Duration) *FixedPolicy {
	if interval < 0 {
		panic("interval can't be < 0")
	}
	return &FixedPolicy{
		schedule: newSchedule(attempts),
		interval: interval,
	}
}

func (r *FixedPolicy) WithJitter(jitter float64) *FixedPolicy {
	r.setJitter(jitter)
	return r
}

func (r *FixedPolicy) WithCooldown(cooldown time.Duration) *FixedPolicy {
	r.setCooldown(cooldown)
	return r
}

func (r *FixedPolicy) Attempt(ctx context.Context) bool {
	return r.attempt(ctx, func(int) time.Duration {
		return r.interval
	})
}

func (r *FixedPolicy) Cooldown() time.Duration {
	return r.cooldown
}

func (r *FixedPolicy) Derive() Policy {
	return Fixed(r.attempts, r.interval).
		WithJitter(r.jitter).
		WithCooldown(r.cooldown)
}
