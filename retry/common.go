package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// schedule holds the state every policy shares: how many attempts were made, how many are
// allowed, and the jitter and cooldown settings.
type schedule struct {
	attempted int
	attempts  int
	infinite  bool
	jitter    float64
	cooldown  time.Duration
}

func newSchedule(attempts int) schedule {
	if attempts < 0 {
		panic("attempts can't be < 0")
	}
	return schedule{
		attempts: attempts,
		infinite: attempts == 0,
		jitter:   0.1,
	}
}

func (s *schedule) setJitter(jitter float64) {
	if jitter < 0 {
		panic("jitter can't be < 0")
	}
	if jitter >= 1 {
		panic("jitter can't be >= 1")
	}
	s.jitter = jitter
}

func (s *schedule) setCooldown(cooldown time.Duration) {
	if s.infinite && cooldown > 0 {
		panic("can't set cooldown with infinite attempts")
	}
	if cooldown < 0 {
		panic("cooldown can't be < 0")
	}
	s.cooldown = cooldown
}

// attempt lets the first attempt through immediately. Every following attempt waits for
// interval(n), where n is the number of retries made so far.
func (s *schedule) attempt(ctx context.Context, interval func(n int) time.Duration) (ok bool) {
	defer func() {
		if ok {
			s.attempted += 1
		}
	}()

	if s.attempted == 0 {
		return ctx.Err() == nil
	}

	if !s.infinite && s.attempted >= s.attempts {
		return false
	}

	return wait(ctx, interval(s.attempted-1), s.jitter)
}

func wait(ctx context.Context, interval time.Duration, jitter float64) bool {
	if interval <= 0 {
		return ctx.Err() == nil
	}

	m := (rand.Float64() * 2) - 1
	j := m * jitter * float64(interval)
	d := interval + time.Duration(j)

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
