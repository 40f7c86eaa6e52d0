// Package api
// Author: momentics
//
// Clock contract for protocol timeouts.

package api

import "time"

// Clock schedules delayed callbacks on the host system's clock.
type Clock interface {
	// Schedule runs fn once after delay. The returned function cancels the
	// callback and reports whether it was still pending.
	Schedule(delay time.Duration, fn func()) (cancel func() bool)

	// Now returns the current time.
	Now() time.Time
}
