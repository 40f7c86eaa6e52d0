// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Error definitions for concurrency module.

package concurrency

import "errors"

var (
	// ErrExecutorClosed indicates the executor has been shut down
	ErrExecutorClosed = errors.New("executor is closed")

	// ErrSchedulerClosed indicates the timer scheduler has been shut down
	ErrSchedulerClosed = errors.New("scheduler is closed")
)
