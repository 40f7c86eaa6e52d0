// File: internal/concurrency/pin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// CPU pinning for long-lived event loop threads.

package concurrency

import (
	"fmt"
	"runtime"
)

// PinCurrentThread locks the calling goroutine to its OS thread and restricts
// that thread to cpu. A negative cpu only locks the thread.
func PinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	if cpu < 0 {
		return nil
	}
	if cpu >= runtime.NumCPU() {
		return fmt.Errorf("pin: cpu %d out of range [0, %d)", cpu, runtime.NumCPU())
	}
	return platformPin(cpu)
}
