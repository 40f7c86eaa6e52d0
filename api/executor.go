// Package api
// Author: momentics
//
// Executor contract for parallel task dispatch.

package api

// Executor abstracts the host task scheduler. Deserialization workers run on it.
type Executor interface {
	// Submit schedules task for execution.
	Submit(task func()) error

	// NumWorkers returns current number of active worker routines.
	NumWorkers() int
}
