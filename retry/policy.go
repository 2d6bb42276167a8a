// Package retry decides how often and how fast a failed spool batch is processed again.
//
// A [Policy] covers two levels. [Policy.Attempt] paces the retries a process worker makes while
// it holds a claimed batch. [Policy.Cooldown] is the lease the storage keeps on the batch once the
// worker gives up and releases it.
package retry

import (
	"context"
	"time"
)

// Policy paces the retries of one claimed batch group.
//
// The policy passed to the spool configuration is a template: every process worker calls
// [Policy.Derive] once per claim, so an instance is never shared between goroutines.
type Policy interface {
	// Attempt reports whether the batch group may be processed once more. The first call returns
	// right away, the following ones sleep for the retry interval. Returns false when no attempts
	// remain, without sleeping, or when ctx is done.
	Attempt(ctx context.Context) bool
	// Cooldown is how long a released batch can't be claimed by any worker. Zero makes it
	// claimable again immediately. The spool reads it once, when it opens the storage.
	Cooldown() time.Duration
	// Derive returns a policy with the same settings and no attempts made.
	Derive() Policy
}
